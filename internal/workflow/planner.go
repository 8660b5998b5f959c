package workflow

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zenweave/zen/internal/dag"
	"github.com/zenweave/zen/internal/model"
)

// replanDebounce coalesces a burst of rapid file writes (an editor's
// save-then-format, a generator skill rewriting several files in a
// row) into a single replan pass.
const replanDebounce = 1 * time.Second

// PlannerEventKind tags the variant of a PlannerEvent.
type PlannerEventKind string

const (
	ReplanTriggered PlannerEventKind = "replan_triggered"
	TasksAdded      PlannerEventKind = "tasks_added"
	TasksCancelled  PlannerEventKind = "tasks_cancelled"
)

// PlannerEvent is emitted by the Planner whenever a watched directory
// change results in a DAG update.
type PlannerEvent struct {
	Kind      PlannerEventKind
	TaskIDs   []model.ID
	Timestamp time.Time
}

// Planner watches a directory of `.code-task.md` files for changes
// made after the DAG was first built (a generator skill rewriting its
// own output, or a human editing a task file mid-run) and reconciles
// the live TaskDAG against the re-parsed task list.
type Planner struct {
	dir        string
	workflowID model.ID
	graph      *dag.TaskDAG
	logger     *log.Logger

	mu      sync.Mutex
	idByRef map[string]model.ID // spec.ID -> task ID, as last reconciled

	watcher *fsnotify.Watcher
	timer   *time.Timer
	stop    chan struct{}
	events  chan PlannerEvent
}

// NewPlanner returns a planner watching dir against graph, whose nodes
// were originally minted by BuildTaskDAG and whose idByRef mapping is
// passed in so the planner can tell an edited task apart from a new
// one.
func NewPlanner(dir string, workflowID model.ID, graph *dag.TaskDAG, idByRef map[string]model.ID, logger *log.Logger) *Planner {
	if logger == nil {
		logger = log.Default()
	}
	refs := make(map[string]model.ID, len(idByRef))
	for k, v := range idByRef {
		refs[k] = v
	}
	return &Planner{
		dir:        dir,
		workflowID: workflowID,
		graph:      graph,
		logger:     logger,
		idByRef:    refs,
		stop:       make(chan struct{}),
		events:     make(chan PlannerEvent, 32),
	}
}

// Events returns the channel PlannerEvents are published on.
func (p *Planner) Events() <-chan PlannerEvent { return p.events }

func (p *Planner) emit(ev PlannerEvent) {
	ev.Timestamp = time.Now()
	select {
	case p.events <- ev:
	default:
	}
}

// Start begins watching p.dir in the background. Callers must call
// Stop when the Implementation phase ends.
func (p *Planner) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("workflow: start planner watcher: %w", err)
	}
	if err := w.Add(p.dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("workflow: watch %s: %w", p.dir, err)
	}
	p.watcher = w
	go p.watchLoop()
	return nil
}

// Stop tears down the watcher goroutine.
func (p *Planner) Stop() {
	close(p.stop)
	if p.watcher != nil {
		_ = p.watcher.Close()
	}
}

func (p *Planner) watchLoop() {
	for {
		select {
		case <-p.stop:
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				p.scheduleReplan()
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Printf("[workflow] planner watch error: %v", err)
		}
	}
}

func (p *Planner) scheduleReplan() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(replanDebounce, p.replan)
}

// replan re-parses every `.code-task.md` file under p.dir and
// reconciles it against the live graph: new spec IDs become new DAG
// nodes (wired to whatever dependencies already exist), specs that
// disappeared but whose task is still Pending/Ready are blocked rather
// than silently forgotten, and a changed description is updated in
// place. A task already Running is never touched — a replan can only
// affect work that hasn't started yet.
func (p *Planner) replan() {
	files, err := DiscoverCodeTaskFiles(p.dir)
	if err != nil {
		p.logger.Printf("[workflow] replan: discover task files: %v", err)
		return
	}

	var specs []TaskSpec
	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			p.logger.Printf("[workflow] replan: read %s: %v", f, err)
			continue
		}
		spec, err := ParseCodeTaskFile(f, content)
		if err != nil {
			p.logger.Printf("[workflow] replan: parse %s: %v", f, err)
			continue
		}
		specs = append(specs, spec)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.emit(PlannerEvent{Kind: ReplanTriggered})

	seen := make(map[string]bool, len(specs))
	var added, cancelled []model.ID
	var newSpecs []TaskSpec

	for _, spec := range specs {
		seen[spec.ID] = true
		id, existed := p.idByRef[spec.ID]
		if !existed {
			t := model.NewTask(p.workflowID, spec.Name, spec.Description)
			p.graph.AddTask(t)
			p.idByRef[spec.ID] = t.ID
			added = append(added, t.ID)
			newSpecs = append(newSpecs, spec)
			continue
		}
		if t, ok := p.graph.GetTask(id); ok && t.Status != model.TaskRunning {
			t.Description = spec.Description
			t.Name = spec.Name
		}
	}

	for _, spec := range newSpecs {
		for _, depRef := range spec.Dependencies {
			from, ok := p.idByRef[depRef]
			if !ok {
				continue
			}
			if err := p.graph.AddDependency(from, p.idByRef[spec.ID], model.SemanticDependency); err != nil {
				p.logger.Printf("[workflow] replan: task %q dependency on %q skipped: %v", spec.ID, depRef, err)
			}
		}
	}

	for ref, id := range p.idByRef {
		if seen[ref] {
			continue
		}
		t, ok := p.graph.GetTask(id)
		if !ok {
			continue
		}
		if t.Status == model.TaskPending || t.Status == model.TaskReady {
			t.Block("removed by replan")
			cancelled = append(cancelled, id)
		}
	}

	if len(added) > 0 {
		p.emit(PlannerEvent{Kind: TasksAdded, TaskIDs: added})
	}
	if len(cancelled) > 0 {
		p.emit(PlannerEvent{Kind: TasksCancelled, TaskIDs: cancelled})
	}
}
