package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	defaultKubernetesURL  = "http://localhost:8001"
	endpointsNamespaceFmt = "/api/v1/namespaces/%s/endpoints/%s"
	defaultNamespace      = "default"
)

var errResourceNotFound = errors.New("resource not found")

// KubernetesOptions configure the access to the Kubernetes API.
type KubernetesOptions struct {
	// APIURL defaults to http://localhost:8001, the address of kubectl
	// proxy.
	APIURL string

	// TokenFile is read for every request, so rotated tokens are picked
	// up.
	TokenFile string
	Token     string

	HTTPClient *http.Client
}

type endpoints struct {
	Subsets []*subset `json:"subsets"`
}

type subset struct {
	Addresses []*address `json:"addresses"`
	Ports     []*port    `json:"ports"`
}

type address struct {
	IP        string           `json:"ip"`
	NodeName  string           `json:"nodeName"`
	TargetRef *objectReference `json:"targetRef"`
}

type objectReference struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
	UID  string `json:"uid"`
}

type port struct {
	Name     string `json:"name"`
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
}

// Kubernetes provides the ready addresses of a service from its endpoints
// resource.
type Kubernetes struct {
	options   KubernetesOptions
	namespace string
	service   string
}

// NewKubernetes creates a provider for a Kubernetes service.
func NewKubernetes(namespace, service string, o KubernetesOptions) *Kubernetes {
	if o.APIURL == "" {
		o.APIURL = defaultKubernetesURL
	}

	o.APIURL = strings.TrimSuffix(o.APIURL, "/")
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}

	if namespace == "" {
		namespace = defaultNamespace
	}

	return &Kubernetes{
		options:   o,
		namespace: namespace,
		service:   service,
	}
}

func (k *Kubernetes) createRequest(ctx context.Context, uri string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", k.options.APIURL+uri, nil)
	if err != nil {
		return nil, err
	}

	token := k.options.Token
	if k.options.TokenFile != "" {
		b, err := os.ReadFile(k.options.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read token file %s: %w", k.options.TokenFile, err)
		}

		token = strings.TrimSpace(string(b))
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req, nil
}

func (k *Kubernetes) getJSON(ctx context.Context, uri string, a any) error {
	log.Tracef("making request to: %s", uri)

	req, err := k.createRequest(ctx, uri)
	if err != nil {
		return err
	}

	rsp, err := k.options.HTTPClient.Do(req)
	if err != nil {
		log.Tracef("request to %s failed: %v", uri, err)
		return err
	}

	defer rsp.Body.Close()

	if rsp.StatusCode == http.StatusNotFound {
		return errResourceNotFound
	}

	if rsp.StatusCode != http.StatusOK {
		return fmt.Errorf("request to %s failed, status: %d, %s", uri, rsp.StatusCode, rsp.Status)
	}

	b := bytes.NewBuffer(nil)
	if _, err = io.Copy(b, rsp.Body); err != nil {
		return err
	}

	return json.Unmarshal(b.Bytes(), a)
}

func (k *Kubernetes) Get(ctx context.Context) ([]Instance, error) {
	var ep endpoints
	err := k.getJSON(ctx, fmt.Sprintf(endpointsNamespaceFmt, k.namespace, k.service), &ep)
	if errors.Is(err, errResourceNotFound) {
		return []Instance{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("requesting endpoints for %s/%s failed: %w", k.namespace, k.service, err)
	}

	var instances []Instance
	for _, s := range ep.Subsets {
		for _, p := range s.Ports {
			for _, a := range s.Addresses {
				i := Instance{
					Name: k.service,
					Host: a.IP,
					Port: p.Port,
				}

				if a.TargetRef != nil {
					i.ID = a.TargetRef.Name
				}

				if p.Name != "" {
					i.Tags = []string{"port-" + p.Name}
				}

				instances = append(instances, i)
			}
		}
	}

	if instances == nil {
		instances = []Instance{}
	}

	return instances, nil
}
