package config

// ExampleConfig is printed by `rrfloop config example`
const ExampleConfig = `# rrfloop configuration
# Every key can be overridden from the environment, e.g. RRFLOOP_TARGET_RUN_COUNT=5

# Component definition (required)
task_name: practice_loop
data_directory: ./data/subject-001
target_run_count: 3

# Component options
min_trial_interval: 0s   # minimum spacing between trial starts
min_free_bytes: 0        # readiness requires this much free space
sync_writes: true        # fsync the raw data file after every record
# trial_command: [./stimulus, --block, practice]   # run once per trial, RRFLOOP_RUN is exported

# Successors for branch 0 (repeat) and branch 1 (continue)
jumps:
  - practice_block
  - test_block

store:
  type: sqlite           # memory, sqlite or postgres
  dsn: ./data/rrfloop.db

logging:
  level: info
  format: text
  file: false

tracing:
  enabled: false
  endpoint: localhost:4318
  environment: development

# Bearer token for /status and /metrics when --metrics-addr is set.
# Generate one with "rrfloop config token"; /health stays open.
# status:
#   token: ""
`
