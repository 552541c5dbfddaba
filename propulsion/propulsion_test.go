package propulsion

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func reading(mv int) PowerReading {
	return PowerReading{BatteryMv: mv, Valid: true}
}

func TestStartsCutOff(t *testing.T) {
	c := NewController(DefaultConfig())
	st := c.State()
	assert.True(t, st.CutOff)
	assert.False(t, st.Running)
	assert.Equal(t, DefaultIdlePulseWidth, st.LeftPulseWidth)
	assert.Equal(t, DefaultIdlePulseWidth, st.RightPulseWidth)
	assert.Equal(t, DefaultBaselinePulseWidth, st.BaselinePulseWidth)
}

func TestCutoffScenario(t *testing.T) {
	c := NewController(DefaultConfig())

	var flags []bool
	for _, mv := range []int{10800, 10300, 10500, 10900} {
		st := c.Drive(PowerReading{BatteryMv: mv, BudgetW: 200, Valid: true}, 40, true)
		flags = append(flags, st.CutOff)
		if st.CutOff {
			assert.Equal(t, DefaultIdlePulseWidth, st.LeftPulseWidth, "mv %d", mv)
			assert.Equal(t, DefaultIdlePulseWidth, st.RightPulseWidth, "mv %d", mv)
			assert.False(t, st.Running)
		} else {
			assert.NotEqual(t, DefaultIdlePulseWidth, st.LeftPulseWidth, "mv %d", mv)
			assert.True(t, st.Running)
		}
	}
	assert.Equal(t, []bool{false, true, true, false}, flags)
}

func TestCutoffNoChatterInBand(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for _, start := range []int{10800, 10400} {
		c := NewController(DefaultConfig())
		initial := c.Drive(reading(start), 0, false).CutOff
		for i := 0; i < 1000; i++ {
			mv := 10401 + rnd.Intn(10799-10401+1)
			assert.Equal(t, initial, c.Drive(reading(mv), 0, false).CutOff)
		}
	}
}

func TestCutoffThresholdsInclusive(t *testing.T) {
	c := NewController(DefaultConfig())
	assert.True(t, c.Drive(reading(10799), 0, false).CutOff)
	assert.False(t, c.Drive(reading(10800), 0, false).CutOff)
	assert.False(t, c.Drive(reading(10401), 0, false).CutOff)
	assert.True(t, c.Drive(reading(10400), 0, false).CutOff)
}

func TestInvalidReadingCutsOff(t *testing.T) {
	c := NewController(DefaultConfig())
	assert.False(t, c.Drive(reading(12000), 0, false).CutOff)

	st := c.Drive(PowerReading{BatteryMv: 12000}, 0, false)
	assert.True(t, st.CutOff)
	assert.Equal(t, DefaultIdlePulseWidth, st.LeftPulseWidth)
}

func TestCutoffThresholdsConfigurable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LowerCutoffMv = 11000
	cfg.UpperCutoffMv = 12000
	c := NewController(cfg)
	assert.True(t, c.Drive(reading(11500), 0, false).CutOff)
	assert.False(t, c.Drive(reading(12000), 0, false).CutOff)
	assert.False(t, c.Drive(reading(11001), 0, false).CutOff)
	assert.True(t, c.Drive(reading(11000), 0, false).CutOff)
}

func TestDriveCorrection(t *testing.T) {
	c := NewController(DefaultConfig())
	st := c.Drive(reading(12000), 30, false)
	assert.Equal(t, 1200, st.CruisePulseWidth)
	assert.Equal(t, 1230, st.LeftPulseWidth)
	assert.Equal(t, 1170, st.RightPulseWidth)

	cfg := DefaultConfig()
	cfg.CorrectionSign = -1
	mirrored := NewController(cfg)
	st = mirrored.Drive(reading(12000), 30, false)
	assert.Equal(t, 1170, st.LeftPulseWidth)
	assert.Equal(t, 1230, st.RightPulseWidth)
}

func TestDriveClampsToRange(t *testing.T) {
	c := NewController(DefaultConfig())
	st := c.Drive(reading(12000), 5000, false)
	assert.Equal(t, DefaultMaxPulseWidth, st.LeftPulseWidth)
	assert.Equal(t, DefaultMinPulseWidth, st.RightPulseWidth)

	st = c.Drive(PowerReading{BatteryMv: 12000, BudgetW: 100000, Valid: true}, 0, true)
	assert.Equal(t, DefaultMaxPulseWidth, st.CruisePulseWidth)
	assert.Equal(t, DefaultMaxPulseWidth, st.LeftPulseWidth)
}

func TestBudgetedCruiseNeverBelowBaseline(t *testing.T) {
	c := NewController(DefaultConfig())

	// 1000 + 50*2 = 1100, below the baseline
	st := c.Drive(PowerReading{BatteryMv: 12000, BudgetW: 50, Valid: true}, 0, true)
	assert.Equal(t, 1200, st.CruisePulseWidth)

	// 1000 + 150*2 = 1300
	st = c.Drive(PowerReading{BatteryMv: 12000, BudgetW: 150, Valid: true}, 0, true)
	assert.Equal(t, 1300, st.CruisePulseWidth)

	// unbudgeted ignores surplus
	st = c.Drive(PowerReading{BatteryMv: 12000, BudgetW: 150, Valid: true}, 0, false)
	assert.Equal(t, 1200, st.CruisePulseWidth)
}

func TestAdjustBaseline(t *testing.T) {
	c := NewController(DefaultConfig())
	c.AdjustBaseline(100)
	assert.Equal(t, 1300, c.State().BaselinePulseWidth)

	c.AdjustBaseline(10000)
	assert.Equal(t, DefaultMaxBaselinePulseWidth, c.State().BaselinePulseWidth)

	c.AdjustBaseline(-10000)
	assert.Equal(t, DefaultMinBaselinePulseWidth, c.State().BaselinePulseWidth)
}

func TestBaselineClampedOnCreate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaselinePulseWidth = 1900
	assert.Equal(t, DefaultMaxBaselinePulseWidth, NewController(cfg).State().BaselinePulseWidth)
}

func TestDriveRaw(t *testing.T) {
	c := NewController(DefaultConfig())
	st := c.DriveRaw(reading(12000), 1600, 1400)
	assert.Equal(t, 1400, st.CruisePulseWidth)
	assert.Equal(t, 1500, st.LeftPulseWidth)
	assert.Equal(t, 1300, st.RightPulseWidth)

	// still subject to cutoff
	st = c.DriveRaw(reading(10000), 1600, 1800)
	assert.True(t, st.CutOff)
	assert.Equal(t, DefaultIdlePulseWidth, st.LeftPulseWidth)
	assert.Equal(t, DefaultIdlePulseWidth, st.RightPulseWidth)
}

func TestHalt(t *testing.T) {
	c := NewController(DefaultConfig())
	c.Drive(reading(12000), 10, false)
	st := c.Halt(reading(12000))
	assert.False(t, st.CutOff)
	assert.False(t, st.Running)
	assert.Equal(t, DefaultIdlePulseWidth, st.LeftPulseWidth)

	// halt still tracks the battery
	assert.True(t, c.Halt(reading(10000)).CutOff)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.UpperCutoffMv = cfg.LowerCutoffMv
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.CorrectionSign = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.IdlePulseWidth = 900
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxBaselinePulseWidth = 2500
	assert.Error(t, cfg.Validate())
}
