package opt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/metagen/internal/domain"
	"github.com/cwbudde/metagen/internal/rnd"
	"github.com/cwbudde/metagen/internal/solution"
)

// CVOAConfig configures the epidemic propagation engine.
type CVOAConfig struct {
	// Strains is the number of concurrently spreading lineages.
	Strains int

	// Parallelism caps the strains running at once. Zero runs all of them.
	Parallelism int

	// PandemicDuration is the number of days each strain spreads at most.
	PandemicDuration int

	// SpreadingRate is the maximum number of infections of an ordinary carrier.
	SpreadingRate int

	// SuperspreadingRate is the [min, max] number of infections of a superspreader.
	SuperspreadingRate [2]int

	SuperspreaderPerc float64
	DeathPerc         float64

	// SocialDistancing is the first day on which carriers may be isolated.
	SocialDistancing int

	PIsolation   float64
	PTravel      float64
	PReinfection float64

	// MaxInfected caps the infected set of a strain per day. Zero is unlimited.
	MaxInfected int

	// MaxDuration bounds the wall time of the whole run. Zero is unlimited.
	MaxDuration time.Duration

	// TargetFitness stops every strain once the shared best reaches it.
	TargetFitness *float64

	Connector *solution.Connector
	Observer  Observer
	Policy    Policy
}

// DefaultCVOAConfig returns the settings of a single strain spreading for ten days.
func DefaultCVOAConfig() CVOAConfig {
	return CVOAConfig{
		Strains:            1,
		PandemicDuration:   10,
		SpreadingRate:      5,
		SuperspreadingRate: [2]int{6, 15},
		SuperspreaderPerc:  0.1,
		DeathPerc:          0.05,
		SocialDistancing:   7,
		PIsolation:         0.5,
		PTravel:            0.1,
		PReinfection:       0.001,
		MaxInfected:        500,
	}
}

func (c *CVOAConfig) validate() error {
	if err := positive("strains", c.Strains); err != nil {
		return err
	}
	if err := positive("pandemic duration", c.PandemicDuration); err != nil {
		return err
	}
	if c.SpreadingRate < 0 || c.Parallelism < 0 || c.MaxInfected < 0 || c.SocialDistancing < 0 {
		return fmt.Errorf("%w: rates and limits cannot be negative", ErrInvalidConfig)
	}
	lo, hi := c.SuperspreadingRate[0], c.SuperspreadingRate[1]
	if lo < 0 || lo > hi {
		return fmt.Errorf("%w: superspreading rate [%d, %d] is not a range", ErrInvalidConfig, lo, hi)
	}
	for name, p := range map[string]float64{
		"superspreader percentage": c.SuperspreaderPerc,
		"death percentage":         c.DeathPerc,
		"isolation probability":    c.PIsolation,
		"travel probability":       c.PTravel,
		"reinfection probability":  c.PReinfection,
	} {
		if err := probability(name, p); err != nil {
			return err
		}
	}
	return nil
}

// Policy holds the decisions of the epidemic model. Nil fields fall back to
// the DefaultPolicy functions.
type Policy struct {
	// TravelDistance returns how many mutations separate a new infection
	// from its carrier.
	TravelDistance func(cfg *CVOAConfig, variables int) int

	// Infections returns how many individuals a carrier tries to infect.
	Infections func(cfg *CVOAConfig, superspreader bool) int

	// Superspreaders returns how many of the fittest carriers spread widely.
	Superspreaders func(cfg *CVOAConfig, infected int) int

	// Deaths returns how many of the least fit carriers die.
	Deaths func(cfg *CVOAConfig, infected int) int

	// Isolated reports whether a carrier is isolated on day.
	Isolated func(cfg *CVOAConfig, day int) bool
}

// DefaultPolicy returns the classic CVOA rules.
func DefaultPolicy() Policy {
	return Policy{
		TravelDistance: func(cfg *CVOAConfig, variables int) int {
			if rnd.Float64() < cfg.PTravel {
				return rnd.IntRange(1, max(1, variables))
			}
			return 1
		},
		Infections: func(cfg *CVOAConfig, superspreader bool) int {
			if superspreader {
				return rnd.IntRange(cfg.SuperspreadingRate[0], cfg.SuperspreadingRate[1])
			}
			return rnd.IntRange(0, cfg.SpreadingRate)
		},
		Superspreaders: func(cfg *CVOAConfig, infected int) int {
			return int(math.Ceil(cfg.SuperspreaderPerc * float64(infected)))
		},
		Deaths: func(cfg *CVOAConfig, infected int) int {
			return int(cfg.DeathPerc * float64(infected))
		},
		Isolated: func(cfg *CVOAConfig, day int) bool {
			return day >= cfg.SocialDistancing && rnd.Float64() < cfg.PIsolation
		},
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.TravelDistance == nil {
		p.TravelDistance = d.TravelDistance
	}
	if p.Infections == nil {
		p.Infections = d.Infections
	}
	if p.Superspreaders == nil {
		p.Superspreaders = d.Superspreaders
	}
	if p.Deaths == nil {
		p.Deaths = d.Deaths
	}
	if p.Isolated == nil {
		p.Isolated = d.Isolated
	}
	return p
}

// StrainError reports the failure of one strain. Sibling strains keep running.
type StrainError struct {
	ID  int
	Err error
}

func (e *StrainError) Error() string {
	return fmt.Sprintf("strain %d: %v", e.ID, e.Err)
}

func (e *StrainError) Unwrap() error {
	return e.Err
}

// bestCell is the state shared by all strains. Every read-modify-write
// happens under mu.
type bestCell struct {
	mu           sync.Mutex
	best         *solution.Solution
	evaluations  int
	improvements int
	target       *float64

	observeMu sync.Mutex
	observer  Observer
}

// offer replaces the best with a copy of s when s is strictly better and
// reports whether the target fitness has been reached.
func (c *bestCell) offer(s *solution.Solution) (reached bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.best == nil || s.Less(c.best) {
		c.best = s.Clone()
		c.improvements++
	}
	return c.target != nil && c.best.Fitness() <= *c.target
}

func (c *bestCell) count(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evaluations += n
	return c.evaluations
}

func (c *bestCell) get() (*solution.Solution, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.best == nil {
		return nil, c.evaluations
	}
	return c.best.Clone(), c.evaluations
}

func (c *bestCell) report(day int) {
	if c.observer == nil {
		return
	}
	best, evaluations := c.get()
	c.observeMu.Lock()
	defer c.observeMu.Unlock()
	c.observer.report(AlgorithmCVOA, day, evaluations, best)
}

// CVOA is the Coronavirus Optimization Algorithm: strains of infected
// solutions spread as mutated copies, while the fittest carriers spread
// widely and the least fit die.
type CVOA struct {
	domain  *domain.Domain
	fitness solution.FitnessFunc
	cfg     CVOAConfig
	policy  Policy
}

// NewCVOA validates cfg and builds the engine.
func NewCVOA(d *domain.Domain, fitness solution.FitnessFunc, cfg CVOAConfig) (*CVOA, error) {
	if err := checkCommon(d, fitness); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &CVOA{domain: d, fitness: fitness, cfg: cfg, policy: cfg.Policy.withDefaults()}, nil
}

func (v *CVOA) Name() string { return AlgorithmCVOA }

// Run spreads every strain concurrently and returns the shared best once all
// strains have finished. Strain failures are joined into the returned error;
// the best solution is still returned when any strain evaluated one.
func (v *CVOA) Run(ctx context.Context) (*solution.Solution, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if v.cfg.MaxDuration > 0 {
		var stop context.CancelFunc
		runCtx, stop = context.WithTimeout(runCtx, v.cfg.MaxDuration)
		defer stop()
	}

	cell := &bestCell{target: v.cfg.TargetFitness, observer: v.cfg.Observer}
	errs := make([]error, v.cfg.Strains)

	slog.Info("Starting CVOA",
		"strains", v.cfg.Strains,
		"pandemic_duration", v.cfg.PandemicDuration,
		"spreading_rate", v.cfg.SpreadingRate,
	)

	g := new(errgroup.Group)
	if v.cfg.Parallelism > 0 {
		g.SetLimit(v.cfg.Parallelism)
	}
	for i := 0; i < v.cfg.Strains; i++ {
		s := v.newStrain(i, cell)
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					errs[s.id] = &StrainError{ID: s.id, Err: fmt.Errorf("panic: %v", r)}
					slog.Warn("Strain panicked", "strain", s.id, "panic", r)
				}
			}()
			if err := s.run(runCtx, cancel); err != nil {
				errs[s.id] = &StrainError{ID: s.id, Err: err}
				slog.Warn("Strain failed", "strain", s.id, "error", err)
			}
			// Strain failures are isolated and reported after Wait.
			return nil
		})
	}
	_ = g.Wait()

	best, evaluations := cell.get()
	err := errors.Join(append(errs, ctx.Err())...)
	if best == nil {
		if err == nil {
			err = errors.New("cvoa: no individual was evaluated")
		}
		return nil, err
	}

	slog.Info("CVOA complete",
		"best_fitness", best.Fitness(),
		"evaluations", evaluations,
		"improvements", cell.improvements,
	)
	return best, err
}

func (v *CVOA) newStrain(id int, cell *bestCell) *strain {
	return &strain{
		id:        id,
		cfg:       &v.cfg,
		policy:    v.policy,
		domain:    v.domain,
		fitness:   v.fitness,
		cell:      cell,
		variables: len(v.domain.Variables()),
		recovered: make(map[string]struct{}),
		dead:      make(map[string]struct{}),
		isolated:  make(map[string]struct{}),
	}
}

// strain owns its population sets exclusively and talks to other strains
// only through the shared cell.
type strain struct {
	id        int
	cfg       *CVOAConfig
	policy    Policy
	domain    *domain.Domain
	fitness   solution.FitnessFunc
	cell      *bestCell
	variables int

	infected  Population
	recovered map[string]struct{}
	dead      map[string]struct{}
	isolated  map[string]struct{}
}

func (s *strain) run(ctx context.Context, stopAll context.CancelFunc) error {
	patientZero, err := solution.New(s.domain, s.cfg.Connector)
	if err != nil {
		return err
	}
	if _, err := patientZero.Evaluate(s.fitness); err != nil {
		return err
	}
	s.cell.count(1)
	if s.cell.offer(patientZero) {
		stopAll()
	}
	s.infected = Population{patientZero}

	for day := 1; day <= s.cfg.PandemicDuration; day++ {
		if ctx.Err() != nil {
			return nil
		}

		next, err := s.spread(ctx, day)
		if err != nil {
			return err
		}
		s.infected = next

		slog.Debug("Strain day complete",
			"algorithm", AlgorithmCVOA,
			"strain", s.id,
			"iteration", day,
			"infected", len(next),
			"recovered", len(s.recovered),
			"dead", len(s.dead),
			"isolated", len(s.isolated),
		)
		if len(next) == 0 {
			s.cell.report(day)
			return nil
		}
		if s.cell.offer(next[0]) {
			stopAll()
		}
		s.cell.report(day)
	}
	return nil
}

// spread advances the strain by one day and returns the new infected
// population sorted by fitness.
func (s *strain) spread(ctx context.Context, day int) (Population, error) {
	s.infected.Sort()
	n := len(s.infected)
	superspreaders := min(s.policy.Superspreaders(s.cfg, n), n)
	deaths := min(s.policy.Deaths(s.cfg, n), n-superspreaders)

	for _, ind := range s.infected[n-deaths:] {
		s.dead[ind.Fingerprint()] = struct{}{}
	}
	carriers := s.infected[:n-deaths]

	var next Population
	seen := make(map[string]struct{})
	evaluations := 0
	defer func() { s.cell.count(evaluations) }()

	for i, carrier := range carriers {
		key := carrier.Fingerprint()
		if s.policy.Isolated(s.cfg, day) {
			s.isolated[key] = struct{}{}
			continue
		}
		s.recovered[key] = struct{}{}

		infections := s.policy.Infections(s.cfg, i < superspreaders)
		for k := 0; k < infections; k++ {
			if s.cfg.MaxInfected > 0 && len(next) >= s.cfg.MaxInfected {
				break
			}
			if ctx.Err() != nil {
				next.Sort()
				return next, nil
			}
			child := carrier.Clone()
			for t := s.policy.TravelDistance(s.cfg, s.variables); t > 0; t-- {
				child.Mutate(0)
			}
			ck := child.Fingerprint()
			if _, dup := seen[ck]; dup || !s.susceptible(ck) {
				continue
			}
			evaluations++
			if _, err := child.Evaluate(s.fitness); err != nil {
				return nil, err
			}
			seen[ck] = struct{}{}
			next = append(next, child)
		}
	}
	next.Sort()
	return next, nil
}

// susceptible reports whether an individual may be infected. The dead never
// return; recovered and isolated individuals are reinfected with PReinfection.
func (s *strain) susceptible(key string) bool {
	if _, ok := s.dead[key]; ok {
		return false
	}
	_, recovered := s.recovered[key]
	_, isolated := s.isolated[key]
	if recovered || isolated {
		return rnd.Float64() < s.cfg.PReinfection
	}
	return true
}
