package ensemble_test

import (
	"context"
	"fmt"

	"github.com/hupe1980/ensemble"
	"github.com/hupe1980/ensemble/params"
	"gonum.org/v1/gonum/mat"
)

func Example() {
	data := mat.NewDense(6, 1, []float64{0, 0.1, 0.2, 10, 10.1, 10.2})

	f := ensemble.New(data, params.Params{
		"random_state": 1,
		"eps":          0.5,
		"min_samples":  2,
		"unused":       true,
	}, ensemble.WithK(2))

	res, err := f.KMeans(context.Background())
	if err != nil {
		panic(err)
	}
	fmt.Println(res.Assignment[0] == res.Assignment[2], res.Assignment[0] != res.Assignment[3])

	res, err = f.DBSCAN(context.Background())
	if err != nil {
		panic(err)
	}
	fmt.Println(res.Assignment, res.Params["eps"])

	// Output:
	// true true
	// [0 0 0 1 1 1] 0.5
}

func ExampleFacade_Available() {
	f := ensemble.New(nil, nil)
	fmt.Println(f.Algorithms())

	// Output:
	// [DBSCAN agglomerative kmeans spectral]
}

func ExampleDefaults() {
	d, _ := ensemble.Defaults(ensemble.AlgorithmDBSCAN)
	fmt.Println(d.Keys())

	// Output:
	// [algorithm eps leaf_size metric min_samples p random_state]
}
