package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestBase64RoundTrip(t *testing.T) {
	for _, urlSafe := range []bool{false, true} {
		data := []byte("hello?>> world~~")
		enc := Base64Encode(data, urlSafe)
		got, err := Base64Decode(enc, urlSafe)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
}

func TestBase64Decode(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		urlSafe bool
		want    string
		wantErr bool
	}{
		{"padded", "aGVsbG8=", false, "hello", false},
		{"missing padding", "aGVsbG8", false, "hello", false},
		{"whitespace", " aGVs\nbG8= \t", false, "hello", false},
		{"url alphabet detected", "Pz8-Pw", false, "??>?", false},
		{"url explicit", "Pz8-Pw==", true, "??>?", false},
		{"invalid", "a$b", false, "", true},
		{"empty", "  ", false, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Base64Decode(tt.in, tt.urlSafe)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}

	_, err := Base64Decode("", false)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestValidateSchedule(t *testing.T) {
	valid := []string{
		"*/5 * * * *",
		"0 2 * * 1-5",
		"30 6 1,15 * *",
		"0 0 * JAN,jul SUN",
		"0 12 ? * MON-FRI",
		"@daily",
		"  0  3  *  *  *  ",
	}
	for _, s := range valid {
		assert.NoError(t, ValidateSchedule(s), s)
	}

	invalid := []string{
		"",
		"* * * *",
		"60 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * * 13 *",
		"* * * * 8",
		"*/0 * * * *",
		"5-1 * * * *",
		"@sometimes",
		"? * * * *",
	}
	for _, s := range invalid {
		assert.Error(t, ValidateSchedule(s), s)
	}
}

func TestCronJobSpecValidate_ReportsAll(t *testing.T) {
	neg := -1
	err := CronJobSpec{
		Name:              "Bad_Name",
		Schedule:          "nope",
		ConcurrencyPolicy: "Sometimes",
		FailedHistory:     &neg,
		Env:               []EnvVar{{Value: "x"}},
	}.Validate()
	require.Error(t, err)

	for _, want := range []string{"name must be lowercase", "schedule", "image is required", "concurrencyPolicy", "failedJobsHistoryLimit", "env[0]"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestGenerateCronJob(t *testing.T) {
	out, err := GenerateCronJob(CronJobSpec{
		Name:     "dlq-replay",
		Schedule: "0  2 * * *",
		Image:    "registry.local/dlq:1.4",
		Command:  []string{"java", "-jar", "/app/replay.jar"},
		Args:     []string{"--topic", "orders"},
		Env:      []EnvVar{{Name: "LOG_LEVEL", Value: "info"}},
	})
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal(out, &doc))

	assert.Equal(t, "batch/v1", doc["apiVersion"])
	assert.Equal(t, "CronJob", doc["kind"])

	meta := doc["metadata"].(map[string]interface{})
	assert.Equal(t, "dlq-replay", meta["name"])
	assert.Equal(t, "default", meta["namespace"])

	spec := doc["spec"].(map[string]interface{})
	assert.Equal(t, "0 2 * * *", spec["schedule"])
	assert.Equal(t, "Forbid", spec["concurrencyPolicy"])
	assert.Equal(t, 3, spec["successfulJobsHistoryLimit"])
	assert.Equal(t, 1, spec["failedJobsHistoryLimit"])

	text := string(out)
	assert.Contains(t, text, "restartPolicy: OnFailure")
	assert.Contains(t, text, "image: registry.local/dlq:1.4")
	assert.Contains(t, text, "- name: LOG_LEVEL")
	assert.NotContains(t, text, "timeZone")
	assert.NotContains(t, text, "backoffLimit")
}

func TestGenerateCronJob_Invalid(t *testing.T) {
	_, err := GenerateCronJob(CronJobSpec{Name: "x", Schedule: "* * *", Image: "i"})
	assert.Error(t, err)
}

// fakeJava writes a shell script standing in for the java binary. The script
// receives "-jar <jar> args...".
func fakeJava(t *testing.T, body string) (javaBin, jar string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	dir := t.TempDir()
	javaBin = filepath.Join(dir, "java")
	require.NoError(t, os.WriteFile(javaBin, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	jar = filepath.Join(dir, "replay.jar")
	require.NoError(t, os.WriteFile(jar, []byte("PK"), 0o644))
	return javaBin, jar
}

func TestDLQRunner_Run(t *testing.T) {
	javaBin, jar := fakeJava(t, `echo "replaying $3"
echo "warn: slow" 1>&2
printf "done"
exit 3`)

	var (
		mu       sync.Mutex
		streamed []string
	)
	r := NewDLQRunner(javaBin, time.Minute, nil)
	res, err := r.Run(context.Background(), DLQRequest{Jar: jar, Args: []string{"orders"}}, func(l OutputLine) {
		mu.Lock()
		streamed = append(streamed, l.Text)
		mu.Unlock()
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.Cancelled)
	require.Len(t, res.Lines, 3)
	assert.ElementsMatch(t, []string{"replaying orders", "warn: slow", "done"}, streamed)

	var stderr []string
	for _, l := range res.Lines {
		if l.Stream == StreamStderr {
			stderr = append(stderr, l.Text)
		}
	}
	assert.Equal(t, []string{"warn: slow"}, stderr)
	assert.Equal(t, []string{javaBin, "-jar", jar, "orders"}, res.Command)

	out := filepath.Join(t.TempDir(), "dlq.csv")
	n, err := ExportLines(out, res)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	content, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), "Seq,Stream,Time,Text\n"))
}

func TestDLQRunner_Cancel(t *testing.T) {
	javaBin, jar := fakeJava(t, "echo started\nexec sleep 30")

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	var once sync.Once

	r := NewDLQRunner(javaBin, 0, nil)
	done := make(chan *DLQResult, 1)
	go func() {
		res, err := r.Run(ctx, DLQRequest{Jar: jar}, func(OutputLine) { once.Do(func() { close(started) }) })
		assert.NoError(t, err)
		done <- res
	}()

	select {
	case <-started:
	case <-time.After(10 * time.Second):
		t.Fatal("child never produced output")
	}
	cancel()

	select {
	case res := <-done:
		assert.True(t, res.Cancelled)
		assert.Equal(t, -1, res.ExitCode)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestDLQRunner_Timeout(t *testing.T) {
	javaBin, jar := fakeJava(t, "exec sleep 30")

	r := NewDLQRunner(javaBin, 100*time.Millisecond, nil)
	res, err := r.Run(context.Background(), DLQRequest{Jar: jar}, nil)
	assert.ErrorIs(t, err, ErrTimedOut)
	require.NotNil(t, res)
	assert.True(t, res.TimedOut)
}

func TestDLQRequestValidate(t *testing.T) {
	assert.ErrorIs(t, DLQRequest{}.Validate(), ErrJarRequired)
	assert.ErrorIs(t, DLQRequest{Jar: "app.zip"}.Validate(), ErrNotJar)

	err := DLQRequest{Jar: filepath.Join(t.TempDir(), "missing.jar")}.Validate()
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestExportLines_Empty(t *testing.T) {
	n, err := ExportLines(filepath.Join(t.TempDir(), "x.csv"), &DLQResult{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
