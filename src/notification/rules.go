package notification

import (
	"fmt"
	"net/http"
	"time"

	"rentalops/src/apperrors"

	"github.com/BurntSushi/toml"
)

const (
	ChannelConsole = "console"
	ChannelEmail   = "email"
	ChannelChat    = "chat"
	ChannelSMS     = "sms"
	ChannelWebhook = "webhook"
)

// SeedRules returns the rules installed at startup.
func SeedRules() []Rule {
	return []Rule{
		{
			ID:      "critical-database",
			Name:    "Critical database errors",
			Enabled: true,
			Conditions: Conditions{
				ErrorCodes: []string{apperrors.CodeDatabaseConn, apperrors.CodeDatabase, apperrors.CodeQueryFailed},
				Severities: []Severity{SeverityCritical},
			},
			Channels:   []string{ChannelConsole, ChannelEmail, ChannelChat, ChannelWebhook},
			Throttling: Throttling{MaxPerHour: 5, MaxPerDay: 20},
			Template: &Template{
				Title:            "Critical database error",
				TitleLocalized:   "Erro crítico no banco de dados",
				Message:          "The database is failing. Check connectivity and recent migrations.",
				MessageLocalized: "O banco de dados está falhando. Verifique a conectividade e migrações recentes.",
			},
		},
		{
			ID:         "high-frequency",
			Name:       "High error frequency",
			Enabled:    true,
			Conditions: Conditions{Frequency: &Frequency{Count: 10, Window: 5 * time.Minute}},
			Channels:   []string{ChannelConsole, ChannelEmail, ChannelChat},
			Throttling: Throttling{MaxPerHour: 2, MaxPerDay: 10},
			Template: &Template{
				Title:            "High error frequency",
				TitleLocalized:   "Alta frequência de erros",
				Message:          "At least 10 errors were recorded in the last 5 minutes.",
				MessageLocalized: "Pelo menos 10 erros foram registrados nos últimos 5 minutos.",
			},
		},
		{
			ID:      "auth-failures",
			Name:    "Repeated authentication failures",
			Enabled: true,
			Conditions: Conditions{
				ErrorCodes: []string{apperrors.CodeAuthentication, apperrors.CodeInvalidToken, apperrors.CodeTokenExpired},
				Frequency:  &Frequency{Count: 5, Window: 10 * time.Minute},
			},
			Channels:   []string{ChannelConsole, ChannelEmail},
			Throttling: Throttling{MaxPerHour: 3, MaxPerDay: 15},
			Template: &Template{
				Title:            "Repeated authentication failures",
				TitleLocalized:   "Falhas de autenticação repetidas",
				Message:          "Authentication keeps failing. This may be a brute force attempt.",
				MessageLocalized: "A autenticação continua falhando. Pode ser uma tentativa de força bruta.",
			},
		},
		{
			ID:      "external-service",
			Name:    "External service failures",
			Enabled: true,
			Conditions: Conditions{
				ErrorCodes: []string{apperrors.CodeExternalService, apperrors.CodeGeminiAPI, apperrors.CodeExternalTimeout},
				Frequency:  &Frequency{Count: 3, Window: 3 * time.Minute},
			},
			Channels:   []string{ChannelConsole, ChannelChat},
			Throttling: Throttling{MaxPerHour: 1, MaxPerDay: 5},
			Template: &Template{
				Title:            "External service failing",
				TitleLocalized:   "Serviço externo com falhas",
				Message:          "An external dependency failed repeatedly in the last 3 minutes.",
				MessageLocalized: "Uma dependência externa falhou repetidamente nos últimos 3 minutos.",
			},
		},
		{
			ID:      "server-errors",
			Name:    "Server errors",
			Enabled: true,
			Conditions: Conditions{
				StatusCodes: []int{http.StatusInternalServerError, http.StatusServiceUnavailable},
			},
			Channels:   []string{ChannelConsole, ChannelEmail, ChannelChat, ChannelSMS, ChannelWebhook},
			Throttling: Throttling{MaxPerHour: 3, MaxPerDay: 10},
		},
	}
}

type rulesFile struct {
	Rules []Rule `toml:"rules"`
}

// LoadRulesFile reads [[rules]] tables from a TOML file. Windows are
// written as duration strings, e.g. window = "5m".
func LoadRulesFile(path string) ([]Rule, error) {
	var f rulesFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("decode rules file %s: %w", path, err)
	}
	for i, r := range f.Rules {
		if err := validateRule(r); err != nil {
			return nil, fmt.Errorf("rules file %s, rule %d: %w", path, i, err)
		}
	}
	return f.Rules, nil
}

// MergeRules overlays extra onto base. A rule with an existing id replaces it
// in place; new ids are appended.
func MergeRules(base, extra []Rule) []Rule {
	out := append([]Rule(nil), base...)
	for _, r := range extra {
		replaced := false
		for i := range out {
			if out[i].ID == r.ID {
				out[i] = r
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, r)
		}
	}
	return out
}

func validateRule(r Rule) error {
	if r.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if len(r.Channels) == 0 {
		return fmt.Errorf("rule %s has no channels", r.ID)
	}
	if f := r.Conditions.Frequency; f != nil && (f.Count <= 0 || f.Window <= 0) {
		return fmt.Errorf("rule %s has an invalid frequency condition", r.ID)
	}
	return nil
}
