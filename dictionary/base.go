package dictionary

import (
	_ "embed"
	"fmt"
	"io"
	"strings"
	"sync"
)

//go:embed base.dict
var baseSource string

var (
	baseOnce sync.Once
	baseDict *Dictionary
	baseErr  error
)

// Base returns the built-in dictionary: RFC 6733 base protocol, credit
// control and the common attributes of the 3GPP interfaces. It panics if the
// embedded source is malformed.
func Base() *Dictionary {
	baseOnce.Do(func() {
		p := NewParser()
		if baseErr = p.Parse(strings.NewReader(baseSource), "base.dict"); baseErr != nil {
			return
		}
		baseDict, baseErr = p.Dictionary()
	})
	if baseErr != nil {
		panic(fmt.Sprintf("dictionary: embedded base dictionary: %v", baseErr))
	}
	return baseDict
}

// Load parses r on top of the base dictionary when withBase is set
func Load(r io.Reader, source string, withBase bool) (*Dictionary, error) {
	p := NewParser()
	if withBase {
		if err := p.Parse(strings.NewReader(baseSource), "base.dict"); err != nil {
			return nil, err
		}
	}
	if err := p.Parse(r, source); err != nil {
		return nil, err
	}
	return p.Dictionary()
}

// LoadFiles parses the base dictionary followed by each file in order.
// Later definitions replace earlier ones with the same name.
func LoadFiles(withBase bool, files ...string) (*Dictionary, error) {
	if withBase && len(files) == 0 {
		return Base(), nil
	}
	p := NewParser()
	if withBase {
		if err := p.Parse(strings.NewReader(baseSource), "base.dict"); err != nil {
			return nil, err
		}
	}
	for _, f := range files {
		if err := p.ParseFile(f); err != nil {
			return nil, err
		}
	}
	return p.Dictionary()
}
