// Command ssmfit fits a linear-Gaussian state-space model's process
// and measurement noise variances to a CSV column of scalar
// observations by Metropolis sampling over the Kalman filter
// likelihood, and prints every retained sample of each posterior
// chain as a table. It is a thin operational entry point wiring
// inference.MetropolisThreaded to a concrete model, the
// parameter-inference layer's one exercised caller, grounded on
// machbase-neo-server's direct kong and go-pretty/v6/table
// dependencies.
package main

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/alecthomas/kong"
	"github.com/go-ssm/ssm"
	"github.com/go-ssm/ssm/dist"
	"github.com/go-ssm/ssm/inference"
	"github.com/go-ssm/ssm/kalman/kf"
	"github.com/go-ssm/ssm/logging"
	"github.com/go-ssm/ssm/model"
	"github.com/go-ssm/ssm/prng"
	"github.com/jedib0t/go-pretty/v6/table"
	"gonum.org/v1/gonum/mat"
)

// CLI describes ssmfit's command-line flags.
type CLI struct {
	Data     string  `arg:"" help:"CSV file with one scalar observation per row."`
	Iters    int     `default:"2000" help:"Metropolis iterations per chain."`
	Burnin   int     `default:"500" help:"Iterations discarded per chain."`
	Chains   int     `default:"4" help:"Number of parallel Metropolis chains."`
	Seed     uint64  `default:"1" help:"Base random seed."`
	ProposalStd float64 `default:"0.05" name:"proposal-std" help:"Std dev of the random-walk proposal."`
	Verbose  bool    `help:"Enable development logging."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Description("Fit a linear-Gaussian model's noise variances by Metropolis sampling over the Kalman filter likelihood."),
		kong.UsageOnError(),
	)

	if err := run(&cli); err != nil {
		kctx.FatalIfErrorf(err)
	}
}

func run(cli *CLI) error {
	logger := logging.NoOp()
	if cli.Verbose {
		logger = logging.Default()
	}
	defer logger.Sync() //nolint:errcheck

	y, err := readObservations(cli.Data)
	if err != nil {
		return fmt.Errorf("reading %s: %w", cli.Data, err)
	}
	if len(y) < 2 {
		return fmt.Errorf("need at least 2 observations, got %d", len(y))
	}

	// theta = [log(processVar), log(measurementVar)], a scalar random
	// walk observed directly.
	newFilter := func(theta []float64) (ssm.Filter, error) {
		A := mat.NewDense(1, 1, []float64{1})
		C := mat.NewDense(1, 1, []float64{1})
		sys, err := model.NewDiscrete(A, nil, C, nil)
		if err != nil {
			return nil, err
		}
		dx0, err := dist.NewGaussian([]float64{y[0][0]}, mat.NewSymDense(1, []float64{1.0}))
		if err != nil {
			return nil, err
		}
		q, err := dist.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{expClamp(theta[0])}))
		if err != nil {
			return nil, err
		}
		r, err := dist.NewGaussian([]float64{0}, mat.NewSymDense(1, []float64{expClamp(theta[1])}))
		if err != nil {
			return nil, err
		}
		return kf.New(sys, dx0, q, r)
	}

	target := inference.LogLikelihoodFunc(newFilter, nil, nil, y)

	draw := func(theta []float64, rng *prng.Source) []float64 {
		next := make([]float64, len(theta))
		for i, v := range theta {
			next[i] = v + rng.NormFloat64()*cli.ProposalStd
		}
		return next
	}

	theta0 := []float64{0, 0}
	chains := inference.MetropolisThreaded(cli.Chains, cli.Burnin, cli.Iters, target, theta0, draw, cli.Seed, logger)

	printSummary(chains)
	return nil
}

// expClamp maps a log-variance parameter to a positive variance,
// clamping the exponent so a wandering chain can't produce a singular
// or overflowing covariance.
func expClamp(logVar float64) float64 {
	v := logVar
	if v < -20 {
		v = -20
	}
	if v > 20 {
		v = 20
	}
	return math.Exp(v)
}

func readObservations(path string) ([]mat.Vector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	y := make([]mat.Vector, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		v, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", row[0], err)
		}
		y = append(y, mat.NewVecDense(1, []float64{v}))
	}
	return y, nil
}

func printSummary(chains [][][]float64) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"chain", "sample", "log(processVar)", "log(measurementVar)"})
	for c, chain := range chains {
		for i, theta := range chain {
			t.AppendRow(table.Row{c, i, theta[0], theta[1]})
		}
	}
	t.Render()
}
