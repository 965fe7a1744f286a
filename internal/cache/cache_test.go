package cache

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestKeys(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	task := uuid.New()

	listKey := TaskListKey(owner)
	if listKey != "tasks:"+owner.String() {
		t.Errorf("TaskListKey = %q", listKey)
	}

	taskKey := TaskKey(owner, task)
	if taskKey != "task:"+owner.String()+":"+task.String() {
		t.Errorf("TaskKey = %q", taskKey)
	}

	// Per-task keys must share the owner prefix the invalidation scan uses.
	if !strings.HasPrefix(taskKey, "task:"+owner.String()+":") {
		t.Errorf("TaskKey %q does not carry the owner scan prefix", taskKey)
	}

	other := uuid.New()
	if TaskListKey(owner) == TaskListKey(other) {
		t.Error("list keys collide across owners")
	}
	if TaskKey(owner, task) == TaskKey(other, task) {
		t.Error("task keys collide across owners")
	}
}
