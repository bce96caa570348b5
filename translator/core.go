package translator

import (
	"fmt"
	"sync"

	"github.com/letsencrypt/batchdml/batch"
	berrors "github.com/letsencrypt/batchdml/errors"
)

// Translator turns one batch into SQL text and a binding slot array.
type Translator interface {
	// SQL returns the statement text, compiling it on first use.
	SQL() (string, error)
	// Bindings returns the slot array. The same *Bindings is returned for
	// the life of the translator.
	Bindings() (*Bindings, error)
	// UpdateBindings refreshes the slot array for row and returns it.
	UpdateBindings(row batch.Row) (*Bindings, error)
}

// compiled is the output of a compile step.
type compiled struct {
	sql   string
	slots []Binding
	// width is the number of values in each row.
	width int
}

type compiler interface {
	compile() (compiled, error)
}

// core implements Translator on top of a compiler. The compiler runs at most
// once; a compile error is kept and returned from every later call.
type core struct {
	compiler compiler

	once     sync.Once
	sql      string
	bindings *Bindings
	width    int
	err      error
}

func (c *core) ensureTranslated() error {
	c.once.Do(func() {
		out, err := c.compiler.compile()
		if err != nil {
			c.err = berrors.WithContext(err, out.sql, berrors.NoRow)
			return
		}
		c.sql = out.sql
		c.bindings = newBindings(out.slots)
		c.width = out.width
	})
	return c.err
}

func (c *core) SQL() (string, error) {
	err := c.ensureTranslated()
	if err != nil {
		return "", err
	}
	return c.sql, nil
}

func (c *core) Bindings() (*Bindings, error) {
	err := c.ensureTranslated()
	if err != nil {
		return nil, err
	}
	return c.bindings, nil
}

func (c *core) UpdateBindings(row batch.Row) (*Bindings, error) {
	err := c.ensureTranslated()
	if err != nil {
		return nil, err
	}
	if len(row) != c.width {
		return nil, &berrors.BatchError{
			Type:   berrors.InvalidBatch,
			Detail: fmt.Sprintf("row has %d values, statement expects %d", len(row), c.width),
			SQL:    c.sql,
			Row:    berrors.NoRow,
		}
	}
	err = c.bindings.refresh(row)
	if err != nil {
		return nil, berrors.WithContext(err, c.sql, berrors.NoRow)
	}
	return c.bindings, nil
}
