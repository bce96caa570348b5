// Package strictyaml provides a strict YAML unmarshaller based on `go-yaml/yaml`
package strictyaml

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Unmarshal decodes exactly one YAML document from b into yamlObj. Keys in
// the document which do not correspond to fields of yamlObj, an empty input,
// and trailing documents all result in errors.
//
// TODO(https://github.com/go-yaml/yaml/issues/639): Replace this function with
// yaml.Unmarshal once a more ergonomic way to set unmarshal options is added upstream.
func Unmarshal(b []byte, yamlObj interface{}) error {
	decoder := yaml.NewDecoder(bytes.NewReader(b))
	decoder.KnownFields(true)

	err := decoder.Decode(yamlObj)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("unmarshalling YAML, input is empty: %w", err)
		}
		return fmt.Errorf("decoding YAML: %w", err)
	}

	var trailing yaml.Node
	err = decoder.Decode(&trailing)
	if !errors.Is(err, io.EOF) {
		return errors.New("unmarshalling YAML, input contains more than one document")
	}
	return nil
}
