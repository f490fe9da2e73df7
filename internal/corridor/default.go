package corridor

import _ "embed"

//go:embed default_catalog.yaml
var defaultCatalog []byte

// Default returns the built-in catalog used when no file is configured.
func Default() *Static {
	s, err := Parse(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return s
}
