package tools

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateArgumentsRejectsMissingRequiredField(t *testing.T) {
	err := ValidateArguments(AddTaskTool{}, []byte(`{}`))
	require.Error(t, err)
}

func TestValidateArgumentsAcceptsWellFormedArgs(t *testing.T) {
	err := ValidateArguments(AddTaskTool{}, []byte(`{"content":"do a thing"}`))
	require.NoError(t, err)
}

func TestValidateArgumentsRejectsMalformedJSON(t *testing.T) {
	err := ValidateArguments(AddTaskTool{}, []byte(`not json`))
	require.Error(t, err)
}

func TestValidateArgumentsIgnoresUnknownFields(t *testing.T) {
	err := ValidateArguments(AddTaskTool{}, []byte(`{"content":"x","unexpected":true}`))
	require.NoError(t, err)
}

func TestReflectParamsProducesPropertiesForStruct(t *testing.T) {
	props := reflectParams(AddTaskArgs{})
	require.Contains(t, props, "content")
}
