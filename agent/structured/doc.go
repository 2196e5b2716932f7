// Copyright 2026 StreamForm Authors
// Use of this source code is governed by the project license.

/*
# 概述

包 structured 提供流式结构化输出的 Schema 描述、松弛（relax）、校验与
部分值调和（reconcile）能力。

模型按 Schema 流式输出 JSON，任意前缀都是“不完整”的实例。Reconcile 先以
松弛后的 Schema 校验候选值，再按原始 Schema 递归裁剪，得到在每个已出现
路径上都合法的快照，供 UI 实时渲染。

# 主要类型

  - Descriptor — 封闭的 Schema 变体：Scalar / Object / Array / Optional
  - Reconciler — 针对单个 Schema 预计算松弛结果，逐个调和流式候选值
  - PruneStats — 调和过程中丢弃的未知字段与标量违规计数
  - ParseError / ValidationErrors — 带路径的校验错误

# 典型用法

	r := structured.NewReconciler(structured.StepByStepSchema())
	snapshot, err := r.Reconcile(partial)
	if types.IsErrorCode(err, types.ErrIncompatibleShape) { // 上游缺陷 }

# 主要能力

  - Relax：required 转 optional，节点包裹 Optional，幂等
  - Reconcile：丢弃未知键，数组保持长度，标量不合法时省略
  - ToJSONSchema：导出为 JSON Schema（invopop/jsonschema），用于系统提示词
  - 内置 Schema：StepByStepSchema、InkeepMessageSchema 及渲染辅助函数
*/
package structured
