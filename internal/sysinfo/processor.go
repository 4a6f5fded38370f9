package sysinfo

// Processor exposes aggregate CPU utilization to display loops.
type Processor struct {
	source *Source
}

// NewProcessor wraps a Source.
func NewProcessor(source *Source) *Processor {
	return &Processor{source: source}
}

// Utilization returns the since-boot busy fraction from a single sample.
func (p *Processor) Utilization() (float64, error) {
	sample, err := p.source.ReadCPUSample()
	if err != nil {
		return 0, err
	}
	return SystemCPUUtilization(sample)
}

// UtilizationSince returns the busy fraction between prev and a fresh sample,
// along with that sample so the caller can pass it back on the next call.
func (p *Processor) UtilizationSince(prev CPUSample) (float64, CPUSample, error) {
	cur, err := p.source.ReadCPUSample()
	if err != nil {
		return 0, CPUSample{}, err
	}
	value, err := CPUUtilizationBetween(prev, cur)
	if err != nil {
		return 0, cur, err
	}
	return value, cur, nil
}
