package value

import "github.com/nanojs/corevm/errvalue"

func errOOM() error {
	return errvalue.New(errvalue.PhaseAlloc, errvalue.KindOOM).Detail("boxed float allocation failed").Build()
}
