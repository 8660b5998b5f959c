package model

import "testing"

func TestTaskLifecycle(t *testing.T) {
	wfID := NewID()
	task := NewTask(wfID, "add login handler", "implement POST /login")

	if task.Status != TaskPending {
		t.Fatalf("new task status = %s, want pending", task.Status)
	}
	if task.WorkflowID != wfID {
		t.Fatalf("task.WorkflowID = %s, want %s", task.WorkflowID, wfID)
	}

	task.Ready()
	if task.Status != TaskReady {
		t.Errorf("after Ready status = %s, want ready", task.Status)
	}

	agentID := NewID()
	task.Start(agentID, "/repo/.zen/worktrees/t1", "zen/task/t1")
	if task.Status != TaskRunning {
		t.Errorf("after Start status = %s, want running", task.Status)
	}
	if task.AgentID == nil || *task.AgentID != agentID {
		t.Errorf("task.AgentID = %v, want %s", task.AgentID, agentID)
	}
	if task.StartedAt == nil {
		t.Fatal("StartedAt is nil after Start")
	}

	task.Complete("abc1234")
	if task.Status != TaskCompleted {
		t.Errorf("status = %s, want completed", task.Status)
	}
	if task.CommitHash != "abc1234" {
		t.Errorf("CommitHash = %q, want abc1234", task.CommitHash)
	}
	if task.CompletedAt == nil {
		t.Error("CompletedAt is nil after Complete")
	}
}

func TestTaskReadyOnlyFromPending(t *testing.T) {
	task := NewTask(NewID(), "x", "y")
	task.Status = TaskRunning

	task.Ready()
	if task.Status != TaskRunning {
		t.Errorf("Ready() on a running task changed status to %s", task.Status)
	}
}

func TestTaskFailAndBlock(t *testing.T) {
	tests := []struct {
		name   string
		run    func(*Task)
		status TaskStatus
	}{
		{"fail records reason", func(tk *Task) { tk.Fail("agent crashed") }, TaskFailed},
		{"block records reason", func(tk *Task) { tk.Block("removed by replan") }, TaskBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := NewTask(NewID(), "x", "y")
			tt.run(task)
			if task.Status != tt.status {
				t.Errorf("status = %s, want %s", task.Status, tt.status)
			}
			if task.LastError == "" {
				t.Error("LastError not recorded")
			}
		})
	}
}
