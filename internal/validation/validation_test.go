package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekey.org/internal/result"
)

var fullPolicy = PasswordPolicy{
	RequireDigit:           true,
	RequireLowercase:       true,
	RequireUppercase:       true,
	RequireNonAlphanumeric: true,
	MinLength:              6,
}

func fieldErrors(t *testing.T, err error) map[string][]string {
	t.Helper()
	require.Error(t, err)
	var f *result.Failure
	require.True(t, errors.As(err, &f))
	require.Equal(t, result.KindValidation, f.Kind)
	out := make(map[string][]string, len(f.Fields))
	for _, fe := range f.Fields {
		out[fe.Field] = fe.Reasons
	}
	return out
}

func TestPasswordAccumulatesAllFailingRules(t *testing.T) {
	err := Validate(Password("Password", "abc", fullPolicy))
	fields := fieldErrors(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, []string{
		MsgRequireDigit,
		MsgRequireUpper,
		MsgRequireNonAlnum,
		MsgMinLength(6),
	}, fields["Password"])
}

func TestPasswordTwoIndependentFailures(t *testing.T) {
	// Missing digit and missing uppercase only; everything else passes.
	err := Validate(Password("Password", "string!", fullPolicy))
	fields := fieldErrors(t, err)
	assert.Equal(t, []string{MsgRequireDigit, MsgRequireUpper}, fields["Password"])
}

func TestPasswordEmptyIsExclusive(t *testing.T) {
	err := Validate(Password("Password", "", fullPolicy))
	fields := fieldErrors(t, err)
	assert.Equal(t, []string{MsgNotEmpty}, fields["Password"])
}

func TestPasswordValid(t *testing.T) {
	assert.NoError(t, Validate(Password("Password", "1String!", fullPolicy)))
}

func TestPasswordPolicyFlagsOff(t *testing.T) {
	policy := PasswordPolicy{MinLength: 4}
	assert.NoError(t, Validate(Password("Password", "aaaa", policy)))
	fields := fieldErrors(t, Validate(Password("Password", "aaa", policy)))
	assert.Equal(t, []string{MsgMinLength(4)}, fields["Password"])
}

func TestUsernameCascadeStops(t *testing.T) {
	fields := fieldErrors(t, Validate(Username("Username", "")))
	assert.Equal(t, []string{MsgNotEmpty}, fields["Username"])

	fields = fieldErrors(t, Validate(Username("Username", "ab")))
	assert.Equal(t, []string{MsgUsernameLength}, fields["Username"])

	assert.NoError(t, Validate(Username("Username", "ABC")))
	assert.Error(t, Validate(Username("Username", "abcdefghijklmnopqrstu")))
}

func TestEmailRule(t *testing.T) {
	assert.NoError(t, Validate(Email("Email", "email1@gmail.com")))

	fields := fieldErrors(t, Validate(Email("Email", "not-an-address")))
	assert.Equal(t, []string{MsgEmail}, fields["Email"])

	fields = fieldErrors(t, Validate(Email("Email", "Bob <bob@example.com>")))
	assert.Equal(t, []string{MsgEmail}, fields["Email"])
}

func TestValidateAggregatesPerField(t *testing.T) {
	err := Validate(
		Username("Username", "ab"),
		Email("Email", "nope"),
		Password("Password", "abc", fullPolicy),
	)
	var f *result.Failure
	require.ErrorAs(t, err, &f)
	// One FieldError per failing field, not one per failing rule.
	require.Len(t, f.Fields, 3)
	assert.Equal(t, "Username", f.Fields[0].Field)
	assert.Equal(t, "Email", f.Fields[1].Field)
	assert.Equal(t, "Password", f.Fields[2].Field)
	assert.Len(t, f.Fields[2].Reasons, 4)
}

func TestValidateMergesRepeatedField(t *testing.T) {
	err := Validate(
		Field{Name: "Password", Value: "", Mode: Cascade, Rules: []Rule{
			{Check: func(v string) bool { return v != "" }, Message: MsgNotEmpty},
		}},
		Field{Name: "Password", Value: "abc", Mode: Accumulate, Rules: []Rule{
			{Check: func(string) bool { return false }, Message: MsgRequireDigit},
		}},
	)
	var f *result.Failure
	require.ErrorAs(t, err, &f)
	// Same field listed twice collapses to one entry with both reasons.
	require.Len(t, f.Fields, 1)
	assert.Equal(t, "Password", f.Fields[0].Field)
	assert.Equal(t, []string{MsgNotEmpty, MsgRequireDigit}, f.Fields[0].Reasons)
}
