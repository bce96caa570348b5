package strictyaml

import (
	"io"
	"testing"

	"github.com/letsencrypt/batchdml/test"
)

type batchFile struct {
	Table string   `yaml:"table"`
	Rows  []string `yaml:"rows"`
}

func TestUnmarshal(t *testing.T) {
	var bf batchFile
	err := Unmarshal([]byte("table: artist\nrows: [a, b]\n"), &bf)
	test.AssertNotError(t, err, "unmarshalling valid YAML")
	test.AssertEquals(t, bf.Table, "artist")
	test.AssertDeepEquals(t, bf.Rows, []string{"a", "b"})
}

func TestUnmarshalUnknownField(t *testing.T) {
	var bf batchFile
	err := Unmarshal([]byte("table: artist\ncolour: blue\n"), &bf)
	test.AssertError(t, err, "unknown field was accepted")
	test.AssertContains(t, err.Error(), "colour")
}

func TestUnmarshalEmpty(t *testing.T) {
	var bf batchFile
	err := Unmarshal(nil, &bf)
	test.AssertErrorIs(t, err, io.EOF)
}

func TestUnmarshalMultipleDocuments(t *testing.T) {
	var bf batchFile
	err := Unmarshal([]byte("table: artist\n---\ntable: album\n"), &bf)
	test.AssertError(t, err, "second document was accepted")
	test.AssertContains(t, err.Error(), "more than one document")
}
