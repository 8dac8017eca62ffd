package prompt

import (
	"fmt"
	goruntime "runtime"
	"time"
)

// renderSystemDescriptor renders the timestamp/OS-info block that orients
// the model in wall-clock time and host platform.
func renderSystemDescriptor() string {
	return fmt.Sprintf("=== System ===\nTime: %s\nOS: %s/%s",
		time.Now().UTC().Format(time.RFC3339), goruntime.GOOS, goruntime.GOARCH)
}
