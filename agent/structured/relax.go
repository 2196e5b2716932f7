package structured

// Relax returns a descriptor that accepts every prefix of a value described by d.
// Every object field becomes optional, every node is wrapped in Optional and
// literal constraints are preserved. Relax is pure and Relax(Relax(d)) equals Relax(d).
//
// An Optional node is returned as is, including its inner descriptor.
func Relax(d Descriptor) Descriptor {
	switch s := d.(type) {
	case *Optional:
		return s
	case *Object:
		out := NewObject().Describe(s.Doc)
		s.Each(func(name string, f Field) {
			out.OptionalField(name, Relax(f.Schema))
		})
		return &Optional{Inner: out}
	case *Array:
		return &Optional{Inner: &Array{Element: Relax(s.Element), Doc: s.Doc}}
	case *Scalar:
		return &Optional{Inner: s}
	default:
		panic("structured: unknown descriptor type")
	}
}
