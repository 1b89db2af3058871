package synth

// Generator produces synthetic training and evaluation artifacts from a Catalogue.
// It holds no mutable state and is safe for concurrent use.
type Generator struct {
	cat Catalogue
}

// New validates cat and returns a Generator holding a private copy of it.
func New(cat Catalogue) (*Generator, error) {
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &Generator{cat: cat.Clone()}, nil
}

// MustNew is like New but panics on an invalid catalogue. Intended for tests and DefaultCatalogue.
func MustNew(cat Catalogue) *Generator {
	g, err := New(cat)
	if err != nil {
		panic(err)
	}
	return g
}

// Catalogue returns a copy of the generator configuration.
func (g *Generator) Catalogue() Catalogue {
	return g.cat.Clone()
}
