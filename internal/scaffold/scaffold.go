// Package scaffold creates the canonical skeleton of a utopia node without
// overwriting anything an operator already wrote.
//
// Every decision is based on what existed before the call: foundations/ is
// only populated when it was empty, and the status report goes under
// topics/utopia-init/ when topics/ already had content. Calling
// EnsureNodeSkeleton twice leaves every file unchanged except the status
// report, which is a point-in-time snapshot.
package scaffold

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/core-nexus/utopian/internal/prompts"
	"github.com/core-nexus/utopian/internal/storage"
	"github.com/core-nexus/utopian/internal/trust"
)

// Node file locations, relative to the node root.
var (
	GoalsReadme      = filepath.Join(storage.GoalsDir, "README.md")
	FoundationsIndex = filepath.Join(storage.FoundationsDir, "index.yaml")
	TopicReport      = filepath.Join(storage.TopicsDir, "utopia-init", "reports", "report.md")
	NodeReport       = filepath.Join(storage.ReportsDir, "utopia-report.md")
)

// ReportVersion is stamped into the status report.
const ReportVersion = "0.1.0"

// Foundations is the structure of foundations/index.yaml.
type Foundations struct {
	Principles  []string `yaml:"principles"`
	Values      []string `yaml:"values"`
	Established string   `yaml:"established"`
}

// DefaultFoundations returns the foundations written into an empty node.
func DefaultFoundations(now time.Time) Foundations {
	return Foundations{
		Principles: []string{
			"Transparency and openness",
			"Mutual respect and collaboration",
			"Quality and reliability",
			"Continuous improvement",
			"Community-driven development",
		},
		Values: []string{
			"Trust",
			"Innovation",
			"Sustainability",
			"Inclusivity",
			"Decentralization",
		},
		Established: now.Format("2006-01-02"),
	}
}

// Result describes what EnsureNodeSkeleton did.
type Result struct {
	// Created lists files written for the first time.
	Created []string
	// Preserved lists files or directories left as they were.
	Preserved []string
	// Report is the status report path, relative to the node root.
	Report string
	// FoundationsPreserved is true when foundations/ had content beforehand.
	FoundationsPreserved bool
}

// EnsureNodeSkeleton creates the node skeleton under store.Root. Any failure
// is returned; nothing here is retried.
func EnsureNodeSkeleton(store *storage.Store, now time.Time) (Result, error) {
	var res Result

	foundations, err := store.ListDir(storage.FoundationsDir)
	if err != nil {
		return res, err
	}
	topics, err := store.ListDir(storage.TopicsDir)
	if err != nil {
		return res, err
	}
	foundationsPopulated := len(foundations) > 0
	topicsPopulated := len(topics) > 0
	res.FoundationsPreserved = foundationsPopulated

	for _, dir := range []string{storage.GoalsDir, storage.TrustDir} {
		if err := store.EnsureDir(dir); err != nil {
			return res, err
		}
	}

	if err := ensureGoals(store, &res); err != nil {
		return res, err
	}

	if foundationsPopulated {
		res.Preserved = append(res.Preserved, storage.FoundationsDir)
	} else {
		if err := store.EnsureDir(storage.FoundationsDir); err != nil {
			return res, err
		}
		if _, err := store.WriteYAML(FoundationsIndex, DefaultFoundations(now)); err != nil {
			return res, fmt.Errorf("write foundations: %w", err)
		}
		res.Created = append(res.Created, FoundationsIndex)
	}

	if err := ensureTrust(store, now, &res); err != nil {
		return res, err
	}

	res.Report = NodeReport
	if topicsPopulated {
		res.Report = TopicReport
	}
	report, err := prompts.Render(prompts.StatusReport, prompts.ReportData{
		Date:                 now.Format("2006-01-02"),
		Version:              ReportVersion,
		FoundationsPreserved: foundationsPopulated,
	})
	if err != nil {
		return res, err
	}
	if _, err := store.WriteText(res.Report, report); err != nil {
		return res, fmt.Errorf("write status report: %w", err)
	}
	return res, nil
}

func ensureGoals(store *storage.Store, res *Result) error {
	if store.Exists(GoalsReadme) {
		res.Preserved = append(res.Preserved, GoalsReadme)
		return nil
	}
	body, err := prompts.Render(prompts.GoalsReadme, nil)
	if err != nil {
		return err
	}
	if _, err := store.WriteText(GoalsReadme, body); err != nil {
		return fmt.Errorf("write goals: %w", err)
	}
	res.Created = append(res.Created, GoalsReadme)
	return nil
}

func ensureTrust(store *storage.Store, now time.Time, res *Result) error {
	if store.Exists(trust.KnownNodesFile) {
		res.Preserved = append(res.Preserved, trust.KnownNodesFile)
		return nil
	}
	seed := trust.Seed(now)
	if _, err := trust.Save(store, seed.Nodes, now); err != nil {
		return err
	}
	res.Created = append(res.Created, trust.KnownNodesFile)
	return nil
}

// ContextSummary describes which core node files exist, in the form shown at
// the planning checkpoint.
func ContextSummary(store *storage.Store) string {
	goals := store.Exists(GoalsReadme)
	foundations := store.Exists(FoundationsIndex)
	trustFile := store.Exists(trust.KnownNodesFile)

	line := func(ok bool, name string) string {
		if ok {
			return "- " + name + " present"
		}
		return "- " + name + " missing"
	}
	return fmt.Sprintf("Repo present: %t\n%s\n%s\n%s",
		store.HasNode(),
		line(goals, "goals"),
		line(foundations, "foundations"),
		line(trustFile, "trust"))
}
