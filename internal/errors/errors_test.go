package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestDriftErrorMessage(t *testing.T) {
	tests := []struct {
		name    string
		err     *DriftError
		want    string
		wantSub []string
	}{
		{
			name: "without cause",
			err:  New(ConnectionFailed, "could not connect to server", nil),
			want: "[CONNECTION_FAILED] could not connect to server",
		},
		{
			name:    "with cause",
			err:     New(ProcessExited, "server exited before probe", stderrors.New("exit status 1")),
			wantSub: []string{"[PROCESS_EXITED]", "server exited before probe", "exit status 1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if tt.want != "" && got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			for _, sub := range tt.wantSub {
				if !strings.Contains(got, sub) {
					t.Errorf("Error() = %q, want to contain %q", got, sub)
				}
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("underlying")
	err := New(InternalError, "wrapper", cause)

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the underlying cause")
	}
}

func TestSuggestedFixes(t *testing.T) {
	t.Run("known code gets fixes", func(t *testing.T) {
		err := New(ConnectionFailed, "boom", nil)
		if len(err.SuggestedFixes) == 0 {
			t.Error("ConnectionFailed should carry suggested fixes")
		}
	})

	t.Run("unknown code gets none", func(t *testing.T) {
		if fixes := GetSuggestedFixes(InternalError); fixes != nil {
			t.Errorf("InternalError should have no fixes, got %v", fixes)
		}
	})
}

func TestWithDetails(t *testing.T) {
	err := New(BuildFailed, "npm install failed", nil).WithDetails(map[string]string{
		"dir": "/tmp/worktree",
	})

	details, ok := err.Details.(map[string]string)
	if !ok {
		t.Fatal("Details not preserved")
	}
	if details["dir"] != "/tmp/worktree" {
		t.Errorf("details.dir = %q", details["dir"])
	}
}
