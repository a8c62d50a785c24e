// Package mpi is the node side of the process-group runtime.
//
// A program calls Init once, queries Rank and Size, may exchange tagged
// messages with Send and Recv, and ends with Finalize. When the program is
// started by the launcher, Init reads the launcher address and the rank of the
// process from the environment and registers with the launcher over rpc.
// Started on its own, the program runs as a singleton group of size 1.
//
//	comm, err := mpi.Init(os.Args)
//	if err != nil {
//		return err
//	}
//	defer comm.Finalize()
//	fmt.Printf("Hello from processor %d of %d\n", comm.Rank(), comm.Size())
package mpi
