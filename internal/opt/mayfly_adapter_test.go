package opt

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/metagen/internal/domain"
	"github.com/cwbudde/metagen/internal/solution"
)

func realVector(t *testing.T, dim int, lo, hi float64) *domain.Domain {
	t.Helper()
	d := domain.New()
	if err := d.DefineStaticStructure("x", dim); err != nil {
		t.Fatal(err)
	}
	if err := d.SetStructureToReal("x", lo, hi); err != nil {
		t.Fatal(err)
	}
	return d
}

// Sphere function: f(x) = sum(x_i^2), minimum at origin
func sphere(s *solution.Solution) (float64, error) {
	var sum float64
	for _, v := range s.Variables()["x"].([]any) {
		f := v.(float64)
		sum += f * f
	}
	return sum, nil
}

func TestMayflyAdapterOnSphere(t *testing.T) {
	optimizer, err := NewMayfly(realVector(t, 3, -10, 10), sphere, MayflyConfig{
		Iterations:     100,
		PopulationSize: 20,
		Seed:           42,
	})
	if err != nil {
		t.Fatal(err)
	}
	if optimizer.Dimensions() != 3 {
		t.Fatalf("Expected 3 dimensions, got %d", optimizer.Dimensions())
	}

	best, err := optimizer.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !best.Evaluated() {
		t.Fatal("Expected an evaluated solution")
	}

	// Should converge close to zero
	if best.Fitness() > 0.5 {
		t.Errorf("Expected fitness near 0, got %f", best.Fitness())
	}
	for i, v := range best.Variables()["x"].([]any) {
		if math.Abs(v.(float64)) > 1.0 {
			t.Errorf("Parameter %d = %f, expected near 0", i, v)
		}
	}
}

func TestMayflyAdapterDeterministic(t *testing.T) {
	d := realVector(t, 2, -5, 5)

	// Run twice with same seed (popSize must be >=20 for mayfly v0.1.0)
	run := func() float64 {
		optimizer, err := NewMayfly(d, sphere, MayflyConfig{Iterations: 50, PopulationSize: 20, Seed: 123})
		if err != nil {
			t.Fatal(err)
		}
		best, err := optimizer.Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		return best.Fitness()
	}

	if cost1, cost2 := run(), run(); cost1 != cost2 {
		t.Errorf("Non-deterministic: cost1=%f, cost2=%f", cost1, cost2)
	}
}

func TestMayflyAdapterSnapsIntegersAndLabels(t *testing.T) {
	d := domain.New()
	if err := d.DefineInteger("n", 0, 10, 5); err != nil {
		t.Fatal(err)
	}
	if err := d.DefineCategorical("c", []string{"a", "b", "c"}); err != nil {
		t.Fatal(err)
	}
	fitness := func(s *solution.Solution) (float64, error) {
		n := s.Get("n").(int)
		if n%5 != 0 {
			t.Errorf("integer %d off the step grid", n)
		}
		if s.Get("c") == "b" {
			return float64(n), nil
		}
		return float64(n) + 100, nil
	}

	optimizer, err := NewMayfly(d, fitness, MayflyConfig{Iterations: 20, PopulationSize: 20, Seed: 7})
	if err != nil {
		t.Fatal(err)
	}
	best, err := optimizer.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if best.Fitness() != 0 {
		t.Errorf("Expected optimum n=0 c=b, got %s", best)
	}
}

func TestMayflyRejectsCompositeDomains(t *testing.T) {
	d := domain.New()
	if err := d.DefineDynamicStructure("d", 1, 3); err != nil {
		t.Fatal(err)
	}
	if err := d.SetStructureToReal("d", 0, 1); err != nil {
		t.Fatal(err)
	}
	_, err := NewMayfly(d, sphere, DefaultMayflyConfig())
	if !errors.Is(err, ErrUnsupportedDomain) {
		t.Fatalf("Expected ErrUnsupportedDomain, got %v", err)
	}

	_, err = NewMayfly(realVector(t, 2, 0, 1), sphere, MayflyConfig{Iterations: 10, PopulationSize: 10})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Expected ErrInvalidConfig for a small population, got %v", err)
	}
}

func TestMayflyPropagatesFitnessErrors(t *testing.T) {
	boom := errors.New("boom")
	optimizer, err := NewMayfly(realVector(t, 2, 0, 1), func(*solution.Solution) (float64, error) {
		return 0, boom
	}, DefaultMayflyConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := optimizer.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Expected fitness error, got %v", err)
	}
}
