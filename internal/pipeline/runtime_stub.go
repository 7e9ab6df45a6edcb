//go:build !govips || !cgo

package pipeline

func Startup() error {
	return nil
}

func Shutdown() {}

func newRasterEncoder() rasterEncoder {
	return stdlibRasterEncoder{}
}
