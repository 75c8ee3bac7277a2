package database

import "testing"

func TestVideoTransition(t *testing.T) {
	tests := []struct {
		from, to VideoStatus
		ok       bool
	}{
		{StatusPending, StatusObtainingMetadata, true},
		{StatusObtainingMetadata, StatusCopyrightStrike, true},
		{StatusObtainedMetadata, StatusFiltered, true},
		{StatusPendingDownload, StatusDownloading, true},
		{StatusDownloading, StatusDownloaded, true},
		{StatusDownloaded, StatusDeleted, true},
		{StatusFailed, StatusPending, true},
		{StatusFailed, StatusPendingDownload, true},
		{StatusPending, StatusDownloaded, false},
		{StatusFiltered, StatusPendingDownload, false},
		{StatusDeleted, StatusDownloaded, false},
		{StatusExcluded, StatusPending, false},
		{StatusCopyrightStrike, StatusPending, false},
	}

	for _, tt := range tests {
		v := &Video{RemoteID: "x", Status: tt.from}
		err := v.Transition(tt.to)
		if tt.ok && err != nil {
			t.Errorf("Expected %s -> %s to be allowed, got %v", tt.from, tt.to, err)
		}
		if !tt.ok {
			if err == nil {
				t.Errorf("Expected %s -> %s to be rejected", tt.from, tt.to)
			}
			if v.Status != tt.from {
				t.Errorf("Expected status to stay %s, got %s", tt.from, v.Status)
			}
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []VideoStatus{StatusFiltered, StatusDeleted, StatusExcluded, StatusCopyrightStrike} {
		if !s.IsTerminal() {
			t.Errorf("Expected %s to be terminal", s)
		}
	}
	for _, s := range []VideoStatus{StatusPending, StatusFailed, StatusDownloaded} {
		if s.IsTerminal() {
			t.Errorf("Expected %s not to be terminal", s)
		}
	}
	if VideoStatus("bogus").Valid() {
		t.Error("Expected unknown status to be invalid")
	}
}
