// Package tlsutil 提供上游模型服务客户端的 TLS 加固设置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
