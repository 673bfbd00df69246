package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAliasOverrides(t *testing.T) {
	data := []byte(`
contact:
  telephone: ["N° portable", "Numéro"]
`)
	o, err := ParseAliasOverrides(data)
	require.NoError(t, err)

	schema, err := o.Apply(testSchema())
	require.NoError(t, err)

	spec, _ := schema.Spec(Phone)
	assert.Equal(t, []string{"N° portable", "Numéro", "telephone", "gsm"}, spec.Aliases)

	r := NewResolver(schema)
	got := r.Resolve(row(2, "numero", "0612345678"))
	assert.Equal(t, "0612345678", got[Phone])
}

func TestAliasOverrides_ApplyDoesNotMutateSchema(t *testing.T) {
	base := testSchema()
	o := AliasOverrides{"contact": {LastName: {"Famille"}}}

	_, err := o.Apply(base)
	require.NoError(t, err)

	spec, _ := base.Spec(LastName)
	assert.Equal(t, []string{"nom", "last name"}, spec.Aliases)
}

func TestAliasOverrides_UnknownField(t *testing.T) {
	o := AliasOverrides{"contact": {"poids": {"Poids"}}}
	_, err := o.Apply(testSchema())
	assert.ErrorContains(t, err, `unknown field "poids"`)
}

func TestAliasOverrides_OtherKindUntouched(t *testing.T) {
	o := AliasOverrides{KindBeneficiary: {Phone: {"GSM"}}}
	schema, err := o.Apply(testSchema())
	require.NoError(t, err)
	assert.Equal(t, testSchema().Fields[1].Aliases, schema.Fields[1].Aliases)
}

func TestLoadAliasOverrides(t *testing.T) {
	o, err := LoadAliasOverrides("")
	require.NoError(t, err)
	assert.Empty(t, o)

	path := filepath.Join(t.TempDir(), "aliases.yaml")
	require.NoError(t, os.WriteFile(path, []byte("contact:\n  nom: [Famille]\n"), 0o600))
	o, err = LoadAliasOverrides(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Famille"}, o["contact"][LastName])

	_, err = LoadAliasOverrides(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = ParseAliasOverrides([]byte("contact: [not, a, map]"))
	assert.Error(t, err)
}
