package keepalive

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Free-tier hosts idle the process after ~15 minutes without traffic,
// which would drop every live session. Pinging our own public URL just
// under that keeps the coordinator warm.
const defaultInterval = 14 * time.Minute

type Pinger struct {
	url      string
	interval time.Duration
	client   *http.Client
	stop     chan struct{}
	wg       sync.WaitGroup
	log      *logrus.Entry
}

func New(url string) *Pinger {
	return &Pinger{
		url:      url,
		interval: defaultInterval,
		client:   &http.Client{Timeout: 30 * time.Second},
		stop:     make(chan struct{}),
		log:      logrus.WithField("component", "keepalive"),
	}
}

// Starts the ping loop. No-op for an empty or local URL.
func (p *Pinger) Start() {
	if p.url == "" || strings.Contains(p.url, "localhost") {
		return
	}
	p.wg.Add(1)
	go p.run()
	p.log.WithField("url", p.url).Info("keep-alive pinger started")
}

func (p *Pinger) Stop() {
	close(p.stop)
	p.wg.Wait()
}

func (p *Pinger) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.ping()
		}
	}
}

func (p *Pinger) ping() {
	resp, err := p.client.Get(p.url)
	if err != nil {
		p.log.WithError(err).Warn("keep-alive ping failed")
		return
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.log.WithField("status", resp.StatusCode).Warn("keep-alive ping returned non-200")
		return
	}
	p.log.Debug("keep-alive ping ok")
}
