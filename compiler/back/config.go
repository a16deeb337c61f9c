package back

import (
	"bytes"
	"os"

	"gopkg.in/yaml.v3"
	"tlog.app/go/errors"

	"github.com/nxlang/nxcc/compiler/ir"
)

type (
	// Scratch names runtime locations the generated code relies on.
	Scratch struct {
		Tmp    string `yaml:"tmp"`
		TmpHi  string `yaml:"tmp_hi"`
		Tmp2   string `yaml:"tmp2"`
		Tmp2Hi string `yaml:"tmp2_hi"`
		MaskFF string `yaml:"mask_ff"`
		Sign80 string `yaml:"sign_80"`

		// VReg is the prefix of pseudo-register slot words.
		VReg string `yaml:"vreg"`
	}

	Config struct {
		Types   ir.TypeTable `yaml:"types"`
		Scratch Scratch      `yaml:"scratch"`

		// Slots is the number of pseudo-register slot words.
		Slots int `yaml:"slots"`

		// CalleeSaved slots are preserved by functions which make calls.
		// Leaf functions use the rest.
		CalleeSaved int `yaml:"callee_saved"`

		CodeOrg int `yaml:"code_org"`

		// StackTop is the initial SP. The stack grows down towards the code.
		StackTop int `yaml:"stack_top"`
	}
)

var ErrConfig = errors.New("bad config")

func DefaultConfig() *Config {
	return &Config{
		Types: ir.TypeTable{
			"char":       {Size: 1, Align: 1},
			"uchar":      {Size: 1, Align: 1},
			"short":      {Size: 2, Align: 2},
			"ushort":     {Size: 2, Align: 2},
			"int":        {Size: 2, Align: 2},
			"uint":       {Size: 2, Align: 2},
			"long":       {Size: 4, Align: 2},
			"ulong":      {Size: 4, Align: 2},
			"longlong":   {Size: 4, Align: 2},
			"ptr":        {Size: 2, Align: 2},
			"struct":     {Size: 0, Align: 2},
			"float":      {Size: 4, Align: 2, Unsupported: true},
			"double":     {Size: 4, Align: 2, Unsupported: true},
			"longdouble": {Size: 4, Align: 2, Unsupported: true},
		},
		Scratch: Scratch{
			Tmp:    "_tmp",
			TmpHi:  "_tmp_hi",
			Tmp2:   "_tmp2",
			Tmp2Hi: "_tmp2_hi",
			MaskFF: "_mask_ff",
			Sign80: "_sign_80",
			VReg:   "_vreg",
		},
		Slots:       16,
		CalleeSaved: 8,
		CodeOrg:     0x0100,
		StackTop:    0xfffe,
	}
}

// LoadConfig reads a yaml file over the defaults.
func LoadConfig(name string) (*Config, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	c := DefaultConfig()

	d := yaml.NewDecoder(bytes.NewReader(data))
	d.KnownFields(true)

	err := d.Decode(c)
	if err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	err = c.Validate()
	if err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Config) Validate() error {
	if c.Slots <= 0 {
		return errors.Wrap(ErrConfig, "slots: %d", c.Slots)
	}

	// leaf functions need at least one slot of their own
	if c.CalleeSaved < 0 || c.CalleeSaved >= c.Slots {
		return errors.Wrap(ErrConfig, "callee_saved: %d not in [0, %d)", c.CalleeSaved, c.Slots)
	}

	for _, n := range []string{c.Scratch.Tmp, c.Scratch.TmpHi, c.Scratch.Tmp2, c.Scratch.Tmp2Hi, c.Scratch.MaskFF, c.Scratch.Sign80, c.Scratch.VReg} {
		if n == "" {
			return errors.Wrap(ErrConfig, "empty scratch name")
		}
	}

	// JMP _start, six scratch words and the slots live below the code.
	if low := 3 + 2*6 + 2*c.Slots; low > c.CodeOrg {
		return errors.Wrap(ErrConfig, "runtime area (%d bytes) overlaps code_org 0x%04x", low, c.CodeOrg)
	}

	if c.StackTop <= c.CodeOrg || c.StackTop > 0xfffe || c.StackTop%2 != 0 {
		return errors.Wrap(ErrConfig, "stack_top 0x%04x: want an even address in (code_org 0x%04x, 0xfffe]", c.StackTop, c.CodeOrg)
	}

	for _, k := range []string{"char", "int", "long", "ptr"} {
		if _, ok := c.Types[k]; !ok {
			return errors.Wrap(ErrConfig, "types: %v is missing", k)
		}
	}

	return nil
}

// scratch resolves $name template references.
func (c *Config) scratch(name string) (string, bool) {
	switch name {
	case "tmp":
		return c.Scratch.Tmp, true
	case "tmp_hi":
		return c.Scratch.TmpHi, true
	case "tmp2":
		return c.Scratch.Tmp2, true
	case "tmp2_hi":
		return c.Scratch.Tmp2Hi, true
	case "mask_ff":
		return c.Scratch.MaskFF, true
	case "sign_80":
		return c.Scratch.Sign80, true
	}

	return "", false
}
