package tools

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Concurrency policies accepted by batch/v1 CronJobs.
const (
	ConcurrencyAllow   = "Allow"
	ConcurrencyForbid  = "Forbid"
	ConcurrencyReplace = "Replace"
)

// Restart policies allowed for Job pods.
const (
	RestartOnFailure = "OnFailure"
	RestartNever     = "Never"
)

// maxCronJobName leaves room for the 11-character suffix Kubernetes appends
// to Job names.
const maxCronJobName = 52

var dnsLabel = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// EnvVar is a container environment variable.
type EnvVar struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// CronJobSpec describes the manifest to generate.
type CronJobSpec struct {
	Name              string   `json:"name"`
	Namespace         string   `json:"namespace"`
	Schedule          string   `json:"schedule"`
	TimeZone          string   `json:"timeZone"`
	Image             string   `json:"image"`
	Command           []string `json:"command"`
	Args              []string `json:"args"`
	Env               []EnvVar `json:"env"`
	ConcurrencyPolicy string   `json:"concurrencyPolicy"`
	RestartPolicy     string   `json:"restartPolicy"`
	SuccessfulHistory *int     `json:"successfulJobsHistoryLimit"`
	FailedHistory     *int     `json:"failedJobsHistoryLimit"`
	BackoffLimit      *int     `json:"backoffLimit"`
	Suspend           bool     `json:"suspend"`
}

// withDefaults fills unset optional fields.
func (s CronJobSpec) withDefaults() CronJobSpec {
	if s.Namespace == "" {
		s.Namespace = "default"
	}
	if s.ConcurrencyPolicy == "" {
		s.ConcurrencyPolicy = ConcurrencyForbid
	}
	if s.RestartPolicy == "" {
		s.RestartPolicy = RestartOnFailure
	}
	if s.SuccessfulHistory == nil {
		s.SuccessfulHistory = intPtr(3)
	}
	if s.FailedHistory == nil {
		s.FailedHistory = intPtr(1)
	}
	return s
}

func intPtr(i int) *int { return &i }

// Validate reports every problem with the spec at once.
func (s CronJobSpec) Validate() error {
	var errs []string

	switch {
	case s.Name == "":
		errs = append(errs, "name is required")
	case len(s.Name) > maxCronJobName:
		errs = append(errs, fmt.Sprintf("name must be at most %d characters", maxCronJobName))
	case !dnsLabel.MatchString(s.Name):
		errs = append(errs, "name must be lowercase alphanumerics and '-', starting and ending with an alphanumeric")
	}
	if s.Namespace != "" && !dnsLabel.MatchString(s.Namespace) {
		errs = append(errs, "namespace is not a valid DNS label")
	}
	if err := ValidateSchedule(s.Schedule); err != nil {
		errs = append(errs, err.Error())
	}
	if strings.TrimSpace(s.Image) == "" {
		errs = append(errs, "image is required")
	}
	switch s.ConcurrencyPolicy {
	case "", ConcurrencyAllow, ConcurrencyForbid, ConcurrencyReplace:
	default:
		errs = append(errs, fmt.Sprintf("concurrencyPolicy %q must be Allow, Forbid or Replace", s.ConcurrencyPolicy))
	}
	switch s.RestartPolicy {
	case "", RestartOnFailure, RestartNever:
	default:
		errs = append(errs, fmt.Sprintf("restartPolicy %q must be OnFailure or Never", s.RestartPolicy))
	}
	for _, p := range []struct {
		name string
		v    *int
	}{
		{"successfulJobsHistoryLimit", s.SuccessfulHistory},
		{"failedJobsHistoryLimit", s.FailedHistory},
		{"backoffLimit", s.BackoffLimit},
	} {
		if p.v != nil && *p.v < 0 {
			errs = append(errs, p.name+" must be non-negative")
		}
	}
	for i, e := range s.Env {
		if strings.TrimSpace(e.Name) == "" {
			errs = append(errs, fmt.Sprintf("env[%d] has no name", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid cronjob:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

type cronField struct {
	name     string
	min, max int
	names    map[string]int
}

var cronFields = []cronField{
	{name: "minute", min: 0, max: 59},
	{name: "hour", min: 0, max: 23},
	{name: "day-of-month", min: 1, max: 31},
	{name: "month", min: 1, max: 12, names: map[string]int{
		"JAN": 1, "FEB": 2, "MAR": 3, "APR": 4, "MAY": 5, "JUN": 6,
		"JUL": 7, "AUG": 8, "SEP": 9, "OCT": 10, "NOV": 11, "DEC": 12,
	}},
	{name: "day-of-week", min: 0, max: 7, names: map[string]int{
		"SUN": 0, "MON": 1, "TUE": 2, "WED": 3, "THU": 4, "FRI": 5, "SAT": 6,
	}},
}

var cronMacros = map[string]bool{
	"@yearly": true, "@annually": true, "@monthly": true, "@weekly": true,
	"@daily": true, "@midnight": true, "@hourly": true,
}

// ValidateSchedule checks a five-field cron expression or a @macro.
func ValidateSchedule(schedule string) error {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return fmt.Errorf("schedule is required")
	}
	if strings.HasPrefix(schedule, "@") {
		if cronMacros[schedule] {
			return nil
		}
		return fmt.Errorf("schedule %q: unknown macro", schedule)
	}

	parts := strings.Fields(schedule)
	if len(parts) != len(cronFields) {
		return fmt.Errorf("schedule %q: want 5 fields, got %d", schedule, len(parts))
	}
	for i, p := range parts {
		if err := cronFields[i].validate(p); err != nil {
			return fmt.Errorf("schedule %q: %w", schedule, err)
		}
	}
	return nil
}

func (f cronField) validate(expr string) error {
	for _, item := range strings.Split(expr, ",") {
		base, step, hasStep := strings.Cut(item, "/")
		if hasStep {
			n, err := strconv.Atoi(step)
			if err != nil || n <= 0 {
				return fmt.Errorf("%s: invalid step %q", f.name, step)
			}
		}
		if base == "*" || (base == "?" && (f.name == "day-of-month" || f.name == "day-of-week")) {
			continue
		}

		lo, hi, isRange := strings.Cut(base, "-")
		a, err := f.value(lo)
		if err != nil {
			return err
		}
		if !isRange {
			continue
		}
		b, err := f.value(hi)
		if err != nil {
			return err
		}
		if b < a {
			return fmt.Errorf("%s: range %q is reversed", f.name, base)
		}
	}
	return nil
}

func (f cronField) value(s string) (int, error) {
	if n, ok := f.names[strings.ToUpper(s)]; ok {
		return n, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid value %q", f.name, s)
	}
	if n < f.min || n > f.max {
		return 0, fmt.Errorf("%s: %d out of range %d-%d", f.name, n, f.min, f.max)
	}
	return n, nil
}

// Manifest types mirror the subset of batch/v1 CronJob the generator emits.
type (
	cronJobManifest struct {
		APIVersion string         `yaml:"apiVersion"`
		Kind       string         `yaml:"kind"`
		Metadata   objectMeta     `yaml:"metadata"`
		Spec       cronJobSpecDoc `yaml:"spec"`
	}
	objectMeta struct {
		Name      string            `yaml:"name"`
		Namespace string            `yaml:"namespace"`
		Labels    map[string]string `yaml:"labels,omitempty"`
	}
	cronJobSpecDoc struct {
		Schedule                   string      `yaml:"schedule"`
		TimeZone                   string      `yaml:"timeZone,omitempty"`
		ConcurrencyPolicy          string      `yaml:"concurrencyPolicy"`
		Suspend                    bool        `yaml:"suspend"`
		SuccessfulJobsHistoryLimit int         `yaml:"successfulJobsHistoryLimit"`
		FailedJobsHistoryLimit     int         `yaml:"failedJobsHistoryLimit"`
		JobTemplate                jobTemplate `yaml:"jobTemplate"`
	}
	jobTemplate struct {
		Spec jobSpec `yaml:"spec"`
	}
	jobSpec struct {
		BackoffLimit *int        `yaml:"backoffLimit,omitempty"`
		Template     podTemplate `yaml:"template"`
	}
	podTemplate struct {
		Spec podSpec `yaml:"spec"`
	}
	podSpec struct {
		RestartPolicy string      `yaml:"restartPolicy"`
		Containers    []container `yaml:"containers"`
	}
	container struct {
		Name    string   `yaml:"name"`
		Image   string   `yaml:"image"`
		Command []string `yaml:"command,omitempty"`
		Args    []string `yaml:"args,omitempty"`
		Env     []EnvVar `yaml:"env,omitempty"`
	}
)

// GenerateCronJob validates spec and renders a batch/v1 CronJob manifest.
func GenerateCronJob(spec CronJobSpec) ([]byte, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	s := spec.withDefaults()

	doc := cronJobManifest{
		APIVersion: "batch/v1",
		Kind:       "CronJob",
		Metadata: objectMeta{
			Name:      s.Name,
			Namespace: s.Namespace,
			Labels:    map[string]string{"app.kubernetes.io/name": s.Name},
		},
		Spec: cronJobSpecDoc{
			Schedule:                   strings.Join(strings.Fields(s.Schedule), " "),
			TimeZone:                   s.TimeZone,
			ConcurrencyPolicy:          s.ConcurrencyPolicy,
			Suspend:                    s.Suspend,
			SuccessfulJobsHistoryLimit: *s.SuccessfulHistory,
			FailedJobsHistoryLimit:     *s.FailedHistory,
			JobTemplate: jobTemplate{Spec: jobSpec{
				BackoffLimit: s.BackoffLimit,
				Template: podTemplate{Spec: podSpec{
					RestartPolicy: s.RestartPolicy,
					Containers: []container{{
						Name:    s.Name,
						Image:   strings.TrimSpace(s.Image),
						Command: s.Command,
						Args:    s.Args,
						Env:     s.Env,
					}},
				}},
			}},
		},
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return buf.Bytes(), nil
}
