package gtkhost

import (
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestParseAccelerator(t *testing.T) {
	assert := assert_.New(t)
	cases := map[string]string{
		"CommandOrControl+Shift+T": "<Primary><Shift>t",
		"CommandOrControl+D":       "<Primary>d",
		"Alt+F4":                   "<Alt>F4",
		"Q":                        "q",
	}
	for accelerator, expected := range cases {
		actual, err := ParseAccelerator(accelerator)
		if assert.NoError(err, accelerator) {
			assert.Equal(expected, actual, accelerator)
		}
	}

	for _, invalid := range []string{"", "CommandOrControl+", "Hyper+X"} {
		_, err := ParseAccelerator(invalid)
		assert.Error(err, invalid)
	}
}

func TestActionName(t *testing.T) {
	assert_.Equal(t, "shortcut-commandorcontrol-shift-t", actionName("CommandOrControl+Shift+T"))
}
