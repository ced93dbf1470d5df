package poller

import (
	"testing"
	"time"

	"github.com/BearBump/ReturnBox/internal/models"
	"github.com/stretchr/testify/suite"
)

type fixedRand struct{ n int }

func (r fixedRand) Intn(int) int { return r.n }

type PlannerSuite struct {
	suite.Suite
}

func (s *PlannerSuite) TestBackoffDelay() {
	p := NewPlanner(DefaultPlannerConfig(), nil)
	s.Equal(5*time.Minute, p.BackoffDelay(1))
	s.Equal(15*time.Minute, p.BackoffDelay(2))
	s.Equal(30*time.Minute, p.BackoffDelay(3))
	s.Equal(60*time.Minute, p.BackoffDelay(4))
	s.Equal(60*time.Minute, p.BackoffDelay(100))
}

func (s *PlannerSuite) TestNextCheckDelay_Terminal() {
	p := NewPlanner(DefaultPlannerConfig(), fixedRand{})
	s.Equal(365*24*time.Hour, p.NextCheckDelay(models.ReturnStatusDelivered))
	s.Equal(365*24*time.Hour, p.NextCheckDelay(models.ReturnStatusPickupCancelled))
}

func (s *PlannerSuite) TestNextCheckDelay_Active_UsesRandWindow() {
	p := NewPlanner(DefaultPlannerConfig(), fixedRand{n: 0})
	s.Equal(30*time.Minute, p.NextCheckDelay("In Transit"))

	p = NewPlanner(DefaultPlannerConfig(), fixedRand{n: 90 * 60})
	s.Equal(120*time.Minute, p.NextCheckDelay("In Transit"))
}

func (s *PlannerSuite) TestNextCheckDelay_FixedWindow() {
	cfg := DefaultPlannerConfig()
	cfg.ActiveMinDelay = time.Minute
	cfg.ActiveMaxDelay = time.Minute
	p := NewPlanner(cfg, nil)
	s.Equal(time.Minute, p.NextCheckDelay("Out For Pickup"))
}

func (s *PlannerSuite) TestNewPlanner_FixesInvertedWindow() {
	cfg := DefaultPlannerConfig()
	cfg.ActiveMinDelay = 2 * time.Hour
	cfg.ActiveMaxDelay = time.Hour
	p := NewPlanner(cfg, fixedRand{})
	s.Equal(2*time.Hour, p.NextCheckDelay("In Transit"))
}

func TestPlannerSuite(t *testing.T) {
	suite.Run(t, new(PlannerSuite))
}
