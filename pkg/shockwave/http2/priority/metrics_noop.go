//go:build !prometheus

package priority

// observeDistribute is a no-op in builds without the prometheus tag.
func (d *Distributor) observeDistribute(bytesSent int64) {}
