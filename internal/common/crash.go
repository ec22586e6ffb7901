package common

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// crashDir receives crash reports. Defaults near the process log until
// InstallCrashHandler points it at the data directory.
var crashDir = "./logs"

// InstallCrashHandler prepares the crash report directory. Call once at the
// start of main, paired with a deferred RecoverWithCrashFile.
func InstallCrashHandler(logDir string) {
	if logDir != "" {
		crashDir = logDir
	}
	if err := os.MkdirAll(crashDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "crash handler: cannot create %s: %v\n", crashDir, err)
	}
}

// RecoverWithCrashFile recovers a panic, writes a crash report, and exits
// non-zero. Intended as a deferred call in main.
func RecoverWithCrashFile() {
	r := recover()
	if r == nil {
		return
	}
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	path := writeCrashReport(r, string(buf[:n]))
	if path != "" {
		fmt.Fprintf(os.Stderr, "fatal: crash report written to %s\n", path)
	}
	fmt.Fprintf(os.Stderr, "panic: %v\n", r)
	os.Exit(1)
}

// writeCrashReport persists the panic value and stack. The report goes to
// stderr when the file cannot be written; a crash must never be silent.
func writeCrashReport(panicVal interface{}, stack string) string {
	var report strings.Builder
	fmt.Fprintf(&report, "colligo crash at %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&report, "version: %s\n", GetFullVersion())
	fmt.Fprintf(&report, "runtime: %s/%s, %d goroutines\n\n", runtime.GOOS, runtime.GOARCH, runtime.NumGoroutine())
	fmt.Fprintf(&report, "panic: %v\n\n%s\n", panicVal, stack)

	path := filepath.Join(crashDir, fmt.Sprintf("crash-%s.log", time.Now().Format("2006-01-02T15-04-05")))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "crash handler: cannot create report: %v\n%s", err, report.String())
		return ""
	}
	if _, err := file.WriteString(report.String()); err != nil {
		fmt.Fprintf(os.Stderr, "crash handler: cannot write report: %v\n%s", err, report.String())
	}
	file.Sync()
	file.Close()
	return path
}
