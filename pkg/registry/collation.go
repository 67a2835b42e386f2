package registry

import (
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// LocaleInfo describes a locale-aware collation backed by golang.org/x/text.
type LocaleInfo struct {
	Name              string
	Tag               language.Tag
	CaseInsensitive   bool
	AccentInsensitive bool
	options           []collate.Option
}

// locales maps registry collation names to x/text configurations.
var locales = func() map[string]*LocaleInfo {
	m := make(map[string]*LocaleInfo)
	add := func(info *LocaleInfo) { m[info.Name] = info }

	add(&LocaleInfo{Name: "UNICODE", Tag: language.Und})
	add(&LocaleInfo{
		Name: "UNICODE_CI", Tag: language.Und, CaseInsensitive: true,
		options: []collate.Option{collate.IgnoreCase},
	})
	add(&LocaleInfo{
		Name: "UNICODE_AI_CI", Tag: language.Und,
		CaseInsensitive: true, AccentInsensitive: true,
		options: []collate.Option{collate.IgnoreCase, collate.Loose},
	})
	add(&LocaleInfo{
		Name: "NUMERIC", Tag: language.Und,
		options: []collate.Option{collate.Numeric},
	})

	localeCIs := []struct {
		name    string
		langTag string
	}{
		{"TURKISH_CI", "tr"},
		{"GERMAN2_CI", "de-u-co-phonebk"},
		{"SPANISH_CI", "es"},
		{"SWEDISH_CI", "sv"},
		{"DANISH_CI", "da"},
		{"POLISH_CI", "pl"},
		{"CZECH_CI", "cs"},
		{"FRENCH_CI", "fr"},
		{"JAPANESE_CI", "ja"},
		{"CHINESE_CI", "zh"},
	}
	for _, lc := range localeCIs {
		add(&LocaleInfo{
			Name:            lc.name,
			Tag:             language.MustParse(lc.langTag),
			CaseInsensitive: true,
			options:         []collate.Option{collate.IgnoreCase},
		})
	}
	return m
}()

// collator pools, one per locale; x/text collators are not goroutine-safe
var collatorPools sync.Map // name -> *sync.Pool

// LocaleCollations lists the names accepted by LocaleCollation.
func LocaleCollations() []string {
	names := make([]string, 0, len(locales))
	for name := range locales {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LocaleCollation returns the comparison function for a named locale
// collation, such as "UNICODE_CI" or "TURKISH_CI".
func LocaleCollation(name string) (Collation, bool) {
	info, ok := locales[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return nil, false
	}

	p, _ := collatorPools.LoadOrStore(info.Name, &sync.Pool{
		New: func() any { return collate.New(info.Tag, info.options...) },
	})
	pool := p.(*sync.Pool)

	return func(a, b string) int {
		c := pool.Get().(*collate.Collator)
		defer pool.Put(c)
		return c.CompareString(a, b)
	}, true
}

// RegisterLocaleCollations registers the named locale collations.
func (r *Registry) RegisterLocaleCollations(names ...string) error {
	for _, name := range names {
		fn, ok := LocaleCollation(name)
		if !ok {
			return &UnknownCollationError{Name: name}
		}
		if _, err := r.CreateCollation(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// UnknownCollationError reports a locale collation name that is not known.
type UnknownCollationError struct {
	Name string
}

func (e *UnknownCollationError) Error() string {
	return "unknown locale collation: " + e.Name
}

// BinaryCollation compares strings byte-wise.
func BinaryCollation(a, b string) int {
	return strings.Compare(a, b)
}
