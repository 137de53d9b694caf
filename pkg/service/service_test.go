package service

import (
	"context"
	"errors"
	"testing"
)

type fake struct {
	name string
	log  *[]string
	err  error
}

func (f *fake) Run() { *f.log = append(*f.log, "run "+f.name) }
func (f *fake) Shutdown(context.Context) error {
	*f.log = append(*f.log, "stop "+f.name)
	return f.err
}
func (f *fake) String() string { return f.name }

func TestGroup(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	g := Group{}
	g.Add(&fake{name: "a", log: &log}, "not runnable", &fake{name: "b", log: &log, err: boom})
	g.Add(&fake{name: "c", log: &log, err: context.Canceled})

	g.Start()
	err := g.Shutdown(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("expected %v, got %v", boom, err)
	}

	want := []string{"run a", "run b", "run c", "stop c", "stop b", "stop a"}
	if len(log) != len(want) {
		t.Fatalf("got %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("got %v, want %v", log, want)
			break
		}
	}
}
