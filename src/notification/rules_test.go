package notification

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rulesTOML = `
[[rules]]
id = "external-service"
name = "External services (strict)"
enabled = true
channels = ["console", "chat", "email"]

  [rules.conditions]
  error_codes = ["GEMINI_API_ERROR"]

  [rules.conditions.frequency]
  count = 2
  window = "90s"

  [rules.throttling]
  max_per_hour = 4
  max_per_day = 12

[[rules]]
id = "reservation-conflicts"
name = "Reservation conflicts"
enabled = true
channels = ["console"]

  [rules.conditions]
  status_codes = [409]
  patterns = ["/api/reservations"]

  [rules.template]
  title = "Reservation conflict"
  title_pt = "Conflito de reserva"
`

func TestLoadRulesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.toml")
	require.NoError(t, os.WriteFile(path, []byte(rulesTOML), 0o600))

	rules, err := LoadRulesFile(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	ext := rules[0]
	require.NotNil(t, ext.Conditions.Frequency)
	assert.Equal(t, 2, ext.Conditions.Frequency.Count)
	assert.Equal(t, 90*time.Second, ext.Conditions.Frequency.Window)
	assert.Equal(t, Throttling{MaxPerHour: 4, MaxPerDay: 12}, ext.Throttling)

	conflicts := rules[1]
	assert.Equal(t, []int{409}, conflicts.Conditions.StatusCodes)
	require.NotNil(t, conflicts.Template)
	assert.Equal(t, "Conflito de reserva", conflicts.Template.TitleLocalized)
}

func TestLoadRulesFile_RejectsInvalidRule(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[rules]]\nname = \"no id\"\nchannels = [\"console\"]\n"), 0o600))

	_, err := LoadRulesFile(path)
	assert.Error(t, err)

	_, err = LoadRulesFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestMergeRules(t *testing.T) {
	merged := MergeRules(SeedRules(), []Rule{
		{ID: "external-service", Name: "override", Channels: []string{"console"}},
		{ID: "new-rule", Name: "new", Channels: []string{"console"}},
	})
	require.Len(t, merged, len(SeedRules())+1)
	assert.Equal(t, "override", merged[3].Name)
	assert.Equal(t, "new-rule", merged[len(merged)-1].ID)
}
