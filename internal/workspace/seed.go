package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/ktagawa/agentq/internal/agent"
	"github.com/ktagawa/agentq/pkg/cerr"
)

// SeedFile is the on-disk declaration of workspaces and their agent
// pipelines. It is applied at startup and re-applied when the file changes.
type SeedFile struct {
	Workspaces []SeedWorkspace `yaml:"workspaces"`
}

type SeedWorkspace struct {
	Name             string      `yaml:"name"`
	WorkingDirMode   string      `yaml:"workingDirMode"`
	WorkingDirPath   string      `yaml:"workingDirPath"`
	AutoDeleteDone   bool        `yaml:"autoDeleteDone"`
	RetentionDays    int         `yaml:"retentionDays"`
	NotifyOnError    bool        `yaml:"notifyOnError"`
	NotifyOnInReview bool        `yaml:"notifyOnInReview"`
	Agents           []SeedAgent `yaml:"agents"`
}

type SeedAgent struct {
	Name        string `yaml:"name"`
	Instruction string `yaml:"instruction"`
	CLI         string `yaml:"cli"`
}

// ParseSeed reads and validates a seed file.
func ParseSeed(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("failed to read seed file %s", path), err)
	}
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, cerr.NewError(cerr.InvalidArgument, "failed to parse seed file", err)
	}
	for _, ws := range seed.Workspaces {
		if ws.Name == "" {
			return nil, cerr.NewError(cerr.InvalidArgument, "workspace name is required", nil)
		}
		mode := WorkingDirMode(ws.WorkingDirMode)
		if mode != "" && mode != ModeTemp && mode != ModeStatic {
			return nil, cerr.NewError(cerr.InvalidArgument,
				fmt.Sprintf("workspace %s: unknown workingDirMode %q", ws.Name, ws.WorkingDirMode), nil)
		}
		if mode == ModeStatic && ws.WorkingDirPath == "" {
			return nil, cerr.NewError(cerr.InvalidArgument,
				fmt.Sprintf("workspace %s: static mode requires workingDirPath", ws.Name), nil)
		}
		for _, a := range ws.Agents {
			if a.Name == "" || a.CLI == "" {
				return nil, cerr.NewError(cerr.InvalidArgument,
					fmt.Sprintf("workspace %s: agents need name and cli", ws.Name), nil)
			}
		}
	}
	return &seed, nil
}

// Seeder applies seed files to the store.
type Seeder struct {
	workspaces Repository
	agents     agent.Repository
	logger     *slog.Logger
}

func NewSeeder(workspaces Repository, agents agent.Repository, logger *slog.Logger) *Seeder {
	return &Seeder{workspaces: workspaces, agents: agents, logger: logger}
}

// Apply upserts every seeded workspace and replaces its agent pipeline with
// the seeded one. Agents are matched by name so re-applying an unchanged
// seed keeps agent ids stable.
func (s *Seeder) Apply(ctx context.Context, seed *SeedFile) error {
	for _, sw := range seed.Workspaces {
		ws, err := s.applyWorkspace(ctx, sw)
		if err != nil {
			return err
		}
		if err := s.applyAgents(ctx, ws.ID, sw.Agents); err != nil {
			return err
		}
		s.logger.Info("applied workspace seed",
			slog.String("workspace", sw.Name),
			slog.Int("agents", len(sw.Agents)))
	}
	return nil
}

func (s *Seeder) applyWorkspace(ctx context.Context, sw SeedWorkspace) (*Workspace, error) {
	mode := WorkingDirMode(sw.WorkingDirMode)
	if mode == "" {
		mode = ModeTemp
	}
	retention := sw.RetentionDays
	if retention <= 0 {
		retention = 30
	}
	now := time.Now().UTC()
	ws := &Workspace{
		ID:               ulid.Make().String(),
		Name:             sw.Name,
		WorkingDirMode:   mode,
		WorkingDirPath:   sw.WorkingDirPath,
		AutoDeleteDone:   sw.AutoDeleteDone,
		RetentionDays:    retention,
		NotifyOnError:    sw.NotifyOnError,
		NotifyOnInReview: sw.NotifyOnInReview,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.workspaces.Upsert(ctx, ws); err != nil {
		return nil, err
	}
	// Upsert keeps the existing id on conflict, so read the row back.
	return s.workspaces.GetByName(ctx, sw.Name)
}

func (s *Seeder) applyAgents(ctx context.Context, workspaceID string, seeded []SeedAgent) error {
	existing, err := s.agents.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}
	byName := make(map[string]*agent.Agent, len(existing))
	for _, a := range existing {
		byName[a.Name] = a
	}

	now := time.Now().UTC()
	seen := make(map[string]bool, len(seeded))
	for pos, sa := range seeded {
		seen[sa.Name] = true
		if a, ok := byName[sa.Name]; ok {
			a.Instruction = sa.Instruction
			a.CLIType = agent.CLIType(sa.CLI)
			a.Position = pos
			if err := s.agents.Update(ctx, a); err != nil {
				return err
			}
			continue
		}
		if err := s.agents.Create(ctx, &agent.Agent{
			ID:          ulid.Make().String(),
			WorkspaceID: workspaceID,
			Name:        sa.Name,
			Instruction: sa.Instruction,
			CLIType:     agent.CLIType(sa.CLI),
			Position:    pos,
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			return err
		}
	}
	for _, a := range existing {
		if !seen[a.Name] {
			if err := s.agents.Delete(ctx, a.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
