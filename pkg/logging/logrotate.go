package logging

import "fmt"

// GenerateLogrotateConfig creates a logrotate configuration for the logs written
// by NewFileLogger(component, ...). The runner keeps its log file open for the
// whole session, so rotation copies and truncates in place.
func GenerateLogrotateConfig(component, owner string) string {
	if owner == "" {
		owner = "root"
	}
	return fmt.Sprintf(`# Logrotate configuration for rrfloop %s
# Install: sudo cp this file to /etc/logrotate.d/rrfloop-%s

/var/log/rrfloop/%s/*.log {
    # Sessions are short; rotate weekly and keep two months
    weekly
    rotate 8

    compress
    delaycompress

    missingok
    notifempty

    # The runner never reopens its log file
    copytruncate

    su %s %s
}
`, component, component, component, owner, owner)
}
