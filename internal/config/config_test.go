package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("Juzgado 1 Civil")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "Juzgado 1 Civil", cfg.Office.Name)
	assert.Equal(t, 365, cfg.Lifecycle.ResolvedWindowDays)
	assert.Equal(t, "America/Bogota", cfg.Location().String())
	assert.Equal(t, []string{"admin", "auxiliar", "consulta", "secretario"}, cfg.RoleNames())
	assert.ElementsMatch(t, KnownPermissions, cfg.Permissions(AdminRole))
	assert.NotContains(t, cfg.Permissions("consulta"), "case.write")
	assert.Nil(t, cfg.Permissions("nobody"))
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"missing office":     "rbac:\n  roles:\n    admin: {permissions: []}\n",
		"bad timezone":       "office: {name: x, timezone: Mars/Olympus}\nrbac:\n  roles:\n    admin: {permissions: []}\n",
		"no admin":           "office: {name: x}\nrbac:\n  roles:\n    clerk: {permissions: [case.read]}\n",
		"unknown permission": "office: {name: x}\nrbac:\n  roles:\n    admin: {permissions: [case.fly]}\n",
		"webhook url":        "office: {name: x}\nrbac:\n  roles:\n    admin: {permissions: []}\nwebhooks:\n  - secret: s\n",
		"negative window":    "office: {name: x}\nlifecycle: {resolved_window_days: -1}\nrbac:\n  roles:\n    admin: {permissions: []}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "juzgado.yml"), []byte(GenerateDefault("Despacho")), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "Despacho", cfg.Office.Name)
}
