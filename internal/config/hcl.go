package config

import (
	"github.com/hashicorp/hcl/v2/hclsimple"
)

// hclFile mirrors Config for HCL documents. Pointers tell absent settings
// apart from zero values so the defaults survive.
type hclFile struct {
	Tool    *string `hcl:"tool,optional"`
	Keymap  *string `hcl:"keymap,optional"`
	Display *struct {
		MaxChildren *int `hcl:"max_children,optional"`
	} `hcl:"display,block"`
	Scan *struct {
		Sort *bool `hcl:"sort,optional"`
	} `hcl:"scan,block"`
	Log *struct {
		Level *string `hcl:"level,optional"`
	} `hcl:"log,block"`
	Snapshot *struct {
		Table *string `hcl:"table,optional"`
	} `hcl:"snapshot,block"`
}

// ParseHCL decodes an HCL document over c and validates the result.
//
//	tool = "ayo"
//	display { max_children = 5 }
func ParseHCL(filename string, data []byte, c *Config) error {
	var f hclFile
	if err := hclsimple.Decode(filename, data, nil, &f); err != nil {
		return err
	}
	setString(&c.Tool, f.Tool)
	setString(&c.Keymap, f.Keymap)
	if f.Display != nil && f.Display.MaxChildren != nil {
		c.Display.MaxChildren = *f.Display.MaxChildren
	}
	if f.Scan != nil && f.Scan.Sort != nil {
		c.Scan.Sort = *f.Scan.Sort
	}
	if f.Log != nil {
		setString(&c.Log.Level, f.Log.Level)
	}
	if f.Snapshot != nil {
		setString(&c.Snapshot.Table, f.Snapshot.Table)
	}
	return c.Validate()
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
