package builtin

import (
	"testing"

	"github.com/bluzky/prana/pkg/prana/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterWiresAllBuiltinActions(t *testing.T) {
	reg := registry.New()
	require.NoError(t, Register(reg))

	for _, name := range []string{"wait.wait", "logic.if_condition", "workflow.run_workflow", "data.set_data"} {
		_, err := reg.GetActionByType(name)
		assert.NoError(t, err, name)
	}
}

func TestRegisterIsIdempotentFailureOnDoubleRegister(t *testing.T) {
	reg := registry.New()
	require.NoError(t, Register(reg))
	assert.Error(t, Register(reg))
}
