package syncengine

import "testing"

func TestStats_AddTodoAccumulates(t *testing.T) {
	s := NewStats()
	s.AddTodo(3, 100)
	s.AddTodo(2, 50)
	if s.TotFiles != 5 {
		t.Fatalf("TotFiles = %d, want 5", s.TotFiles)
	}
	if s.TotSize != 150 {
		t.Fatalf("TotSize = %d, want 150", s.TotSize)
	}
}

func TestStats_RecordAndSnapshot(t *testing.T) {
	s := NewStats()
	s.Record(FileCopied)
	s.Record(FileCopied)
	s.Record(UpToDate)

	if got := s.Count(FileCopied); got != 2 {
		t.Fatalf("Count(FileCopied) = %d, want 2", got)
	}
	snap := s.Snapshot()
	if snap[UpToDate] != 1 {
		t.Fatalf("Snapshot()[UpToDate] = %d, want 1", snap[UpToDate])
	}
}

func TestOutcome_String(t *testing.T) {
	cases := map[Outcome]string{
		UpToDate:           "UpToDate",
		FileCopied:         "FileCopied",
		ChecksumUpdated:    "ChecksumUpdated",
		PermissionsUpdated: "PermissionsUpdated",
	}
	for o, want := range cases {
		if got := o.String(); got != want {
			t.Errorf("Outcome(%d).String() = %q, want %q", o, got, want)
		}
	}
}
