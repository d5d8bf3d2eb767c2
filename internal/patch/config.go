package patch

import (
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/mufanc/fpatch/pkg/errors"
)

// entryModel mirrors one [[prepend]]/[[append]]/[[replace]] table in
// patches.toml.
type entryModel struct {
	File    string `toml:"file"`
	Content string `toml:"content"`
}

// configModel mirrors the whole of patches.toml. Every section is optional;
// an absent section yields no records of that mode.
type configModel struct {
	Prepend []entryModel `toml:"prepend"`
	Append  []entryModel `toml:"append"`
	Replace []entryModel `toml:"replace"`
}

// LoadConfig reads and parses patches.toml at path, returning one Record per
// table entry, grouped by section: all prepend entries, then append, then
// replace. Entries keep their file order within a section; the relative file
// order of entries from different sections is not preserved.
func LoadConfig(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigUnreadable, "read patches.toml", err).
			WithContext("path", path)
	}

	var model configModel
	if err := toml.Unmarshal(data, &model); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigMalformed, "parse patches.toml", err).
			WithContext("path", path)
	}

	records := make([]Record, 0, len(model.Prepend)+len(model.Append)+len(model.Replace))
	for _, e := range model.Prepend {
		records = append(records, Record{Mode: Prepend, Path: e.File, Content: []byte(e.Content)})
	}
	for _, e := range model.Append {
		records = append(records, Record{Mode: Append, Path: e.File, Content: []byte(e.Content)})
	}
	for _, e := range model.Replace {
		records = append(records, Record{Mode: Replace, Path: e.File, Content: []byte(e.Content)})
	}

	return records, nil
}
