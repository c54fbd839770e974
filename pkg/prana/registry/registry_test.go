package registry

import (
	"testing"

	praerrors "github.com/bluzky/prana/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopAction struct{ BaseAction }

func (noopAction) Execute(map[string]interface{}, map[string]interface{}) Result {
	return OK(map[string]interface{}{"ok": true})
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	err := r.Register(Integration{
		Name: "logic",
		Actions: []Descriptor{
			{Name: "logic.if_condition", OutputPorts: []string{"true", "false"}, Action: noopAction{}},
		},
	})
	require.NoError(t, err)

	d, err := r.GetActionByType("logic.if_condition")
	require.NoError(t, err)
	assert.Equal(t, "logic", d.Integration)
	assert.ElementsMatch(t, []string{"true", "false"}, d.OutputPorts)
}

func TestDuplicateIntegrationRejected(t *testing.T) {
	r := New()
	integ := Integration{Name: "logic", Actions: []Descriptor{{Name: "logic.a", Action: noopAction{}}}}
	require.NoError(t, r.Register(integ))

	err := r.Register(integ)
	require.Error(t, err)
	var verr *praerrors.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestActionNotFound(t *testing.T) {
	r := New()
	_, err := r.GetActionByType("missing.type")
	require.Error(t, err)
	var nf *praerrors.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "action_not_found", nf.Resource)
}

func TestUnregisterRemovesActions(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Integration{
		Name:    "logic",
		Actions: []Descriptor{{Name: "logic.a", Action: noopAction{}}},
	}))
	require.NoError(t, r.Unregister("logic"))

	_, err := r.GetActionByType("logic.a")
	require.Error(t, err)
}

func TestDynamicPortDeclaration(t *testing.T) {
	d := Descriptor{OutputPorts: []string{"*"}}
	assert.True(t, d.HasDynamicOutputPorts())
	assert.False(t, d.HasDynamicInputPorts())
}
