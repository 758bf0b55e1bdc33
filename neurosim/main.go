// Command neurosim runs compartmental neuron models.
package main

import (
	"github.com/tebeka/atexit"

	"github.com/sarchlab/neurosim/neurosim/cmd"
)

func main() {
	cmd.Execute()
	atexit.Exit(0)
}
