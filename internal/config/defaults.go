package config

const (
	defaultStateFile             = "state/processed_items.json"
	defaultRollupsFile           = "state/rollups.json"
	defaultRecipientsFile        = "data/recipients.json"
	defaultItemsDir              = "data/items"
	defaultReportDir             = "reports"
	defaultAuditDB               = "state/audit.db"
	defaultLockFile              = "state/newsagent.lock"
	defaultTimezone              = "Europe/Stockholm"
	defaultTargetTime            = "06:00"
	defaultEarlyToleranceMinutes = 10
	defaultLateToleranceMinutes  = 50
	defaultLookbackHours         = 24
	defaultMaxCatchupDays        = 7
	defaultRetentionDays         = 120
	defaultRollupMaxMonths       = 24
	defaultRollupMaxTopItems     = 10
	defaultNotifyTimeout         = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

var defaultActiveWeekdays = []string{"mon", "tue", "wed", "thu", "fri"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateFile:      defaultStateFile,
			RollupsFile:    defaultRollupsFile,
			RecipientsFile: defaultRecipientsFile,
			ItemsDir:       defaultItemsDir,
			ReportDir:      defaultReportDir,
			AuditDB:        defaultAuditDB,
			LockFile:       defaultLockFile,
		},
		Schedule: Schedule{
			Timezone:              defaultTimezone,
			TargetTime:            defaultTargetTime,
			EarlyToleranceMinutes: defaultEarlyToleranceMinutes,
			LateToleranceMinutes:  defaultLateToleranceMinutes,
			ActiveWeekdays:        append([]string(nil), defaultActiveWeekdays...),
			DefaultLookbackHours:  defaultLookbackHours,
			MaxCatchupDays:        defaultMaxCatchupDays,
		},
		State: State{
			RetentionDays: defaultRetentionDays,
		},
		Rollups: Rollups{
			MaxMonths:        defaultRollupMaxMonths,
			AllowPartialYear: true,
			MaxTopItems:      defaultRollupMaxTopItems,
		},
		Reports: Reports{
			Enabled: []string{"cybermed", "cyberlurch"},
			Titles: map[string]string{
				"cybermed":   "Cybermed Report",
				"cyberlurch": "The Cyberlurch Report",
			},
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			ReportSent:     false,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
