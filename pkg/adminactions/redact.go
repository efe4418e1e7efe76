package adminactions

import "strings"

// RedactedValue replaces sensitive metadata values in the action history.
const RedactedValue = "***REDACTED***"

var sensitiveKeyPatterns = []string{"password", "token", "secret", "apikey", "api_key", "credential"}

// IsSensitiveKey reports whether a metadata key names a secret.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, p := range sensitiveKeyPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// historyParams converts command parameters into the form stored with an
// action record, with sensitive backup metadata masked.
func historyParams(params Params) map[string]any {
	switch p := params.(type) {
	case BackupParams:
		out := map[string]any{
			"name":        p.Name,
			"backup_type": p.BackupType,
			"rotation":    p.Rotation,
		}
		if len(p.Metadata) > 0 {
			md := make(map[string]any, len(p.Metadata))
			for k, v := range p.Metadata {
				if IsSensitiveKey(k) {
					md[k] = RedactedValue
					continue
				}
				md[k] = v
			}
			out["metadata"] = md
		}
		return out
	case LiveMigrateParams:
		out := map[string]any{
			"block_migration":  p.BlockMigration,
			"disk_over_commit": p.DiskOverCommit,
			"host":             nil,
		}
		if p.Host != nil {
			out["host"] = *p.Host
		}
		return out
	case ResetStateParams:
		return map[string]any{"state": string(p.State)}
	}
	return nil
}
