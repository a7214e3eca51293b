/*
Copyright 2025 The fleetform contributors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package stacks

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	semverlib "github.com/Masterminds/semver/v3"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// Upstream module sources and their version pins. The karpenter component
// is not scaffolded; it is inserted on demand by the karpenter layer.
const (
	VPCModuleSource       = "terraform-aws-modules/vpc/aws"
	VPCModuleVersion      = "~> 5.13"
	EKSModuleSource       = "terraform-aws-modules/eks/aws"
	EKSModuleVersion      = "~> 20.24"
	AddonsModuleSource    = "aws-ia/eks-blueprints-addons/aws"
	AddonsModuleVersion   = "~> 1.16"
	KarpenterModuleSource = "terraform-aws-modules/eks/aws//modules/karpenter"

	awsProviderVersion        = "~> 5.70"
	helmProviderVersion       = "~> 2.15"
	kubernetesProviderVersion = "~> 2.32"

	defaultKubernetesVersion = "1.31"
)

// ScaffoldOptions configures the generated stack configuration.
type ScaffoldOptions struct {
	// Fleet is the name prefix for all clusters.
	Fleet string
	// Regions receives one deployment block each.
	Regions []string
	// KubernetesVersion is the EKS control plane version.
	KubernetesVersion string
	// RoleARN is assumed by the remote runner through OIDC federation.
	RoleARN string
	// Force overwrites an existing configuration.
	Force bool
}

// Scaffold generates a complete Stacks configuration for a multi-region
// EKS fleet: variables, providers, the vpc/eks/addons component graph and
// one deployment per region.
func Scaffold(dir string, opt ScaffoldOptions) ([]string, error) {
	if opt.Fleet == "" {
		return nil, fmt.Errorf("fleet name must not be empty")
	}
	if len(opt.Regions) == 0 {
		return nil, fmt.Errorf("at least one region is required")
	}
	if opt.KubernetesVersion == "" {
		opt.KubernetesVersion = defaultKubernetesVersion
	}

	if err := validateVersionPins(); err != nil {
		return nil, err
	}

	files := map[string]*hclwrite.File{
		"variables" + ComponentFileSuffix:    scaffoldVariables(opt),
		"providers" + ComponentFileSuffix:    scaffoldProviders(),
		"components" + ComponentFileSuffix:   scaffoldComponents(),
		"deployments" + DeploymentFileSuffix: scaffoldDeployments(opt),
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create stack directory: %w", err)
	}

	var written []string

	for name, file := range files {
		path := filepath.Join(dir, name)

		if !opt.Force {
			if _, err := os.Stat(path); err == nil {
				return nil, fmt.Errorf("%s already exists, use force to overwrite", path)
			}
		}

		if err := os.WriteFile(path, hclwrite.Format(file.Bytes()), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}

		written = append(written, path)
	}

	return written, nil
}

// KarpenterComponent is the component definition inserted by the karpenter
// layer when autoscaling is enabled for the fleet.
func KarpenterComponent() ComponentDef {
	return ComponentDef{
		Name:    "karpenter",
		Source:  KarpenterModuleSource,
		Version: EKSModuleVersion,
		Inputs: map[string]string{
			"cluster_name":                    "component.eks.cluster_name",
			"enable_v1_permissions":           "true",
			"namespace":                       `"kube-system"`,
			"create_pod_identity_association": "true",
			"node_iam_role_use_name_prefix":   "false",
			"tags":                            "var.tags",
		},
		Providers: map[string]string{
			"aws": "provider.aws.this",
		},
	}
}

func validateVersionPins() error {
	pins := map[string]string{
		VPCModuleSource:    VPCModuleVersion,
		EKSModuleSource:    EKSModuleVersion,
		AddonsModuleSource: AddonsModuleVersion,
	}

	for source, pin := range pins {
		if _, err := semverlib.NewConstraint(pin); err != nil {
			return fmt.Errorf("invalid version pin %q for module %s: %w", pin, source, err)
		}
	}

	return nil
}

func scaffoldVariables(opt ScaffoldOptions) *hclwrite.File {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	stringVar := func(name, description string, def cty.Value) {
		block := body.AppendNewBlock("variable", []string{name})
		block.Body().SetAttributeRaw("type", rawTokens("string"))
		if description != "" {
			block.Body().SetAttributeValue("description", cty.StringVal(description))
		}
		if def != cty.NilVal {
			block.Body().SetAttributeValue("default", def)
		}
		body.AppendNewline()
	}

	stringVar("fleet_name", "Name prefix for all clusters of this stack", cty.StringVal(opt.Fleet))
	stringVar("kubernetes_version", "EKS control plane version", cty.StringVal(opt.KubernetesVersion))
	stringVar("role_arn", "IAM role assumed by the remote runner via OIDC", cty.StringVal(opt.RoleARN))
	stringVar("region", "AWS region this deployment lives in", cty.NilVal)
	stringVar("cluster_name", "Name of the EKS cluster", cty.NilVal)
	stringVar("vpc_cidr", "CIDR block of the cluster VPC", cty.NilVal)

	azsVar := body.AppendNewBlock("variable", []string{"azs"})
	azsVar.Body().SetAttributeRaw("type", rawTokens("list(string)"))
	body.AppendNewline()

	token := body.AppendNewBlock("variable", []string{"identity_token"})
	token.Body().SetAttributeRaw("type", rawTokens("string"))
	token.Body().SetAttributeValue("ephemeral", cty.True)
	body.AppendNewline()

	karpenter := body.AppendNewBlock("variable", []string{"enable_karpenter"})
	karpenter.Body().SetAttributeRaw("type", rawTokens("bool"))
	karpenter.Body().SetAttributeValue("default", cty.False)
	body.AppendNewline()

	argocd := body.AppendNewBlock("variable", []string{"enable_argocd"})
	argocd.Body().SetAttributeRaw("type", rawTokens("bool"))
	argocd.Body().SetAttributeValue("default", cty.False)
	body.AppendNewline()

	tags := body.AppendNewBlock("variable", []string{"tags"})
	tags.Body().SetAttributeRaw("type", rawTokens("map(string)"))
	tags.Body().SetAttributeRaw("default", rawTokens("{}"))

	return f
}

func scaffoldProviders() *hclwrite.File {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	required := body.AppendNewBlock("required_providers", nil)
	required.Body().SetAttributeRaw("aws", objectTokens(map[string]string{
		"source":  `"hashicorp/aws"`,
		"version": fmt.Sprintf("%q", awsProviderVersion),
	}))
	required.Body().SetAttributeRaw("helm", objectTokens(map[string]string{
		"source":  `"hashicorp/helm"`,
		"version": fmt.Sprintf("%q", helmProviderVersion),
	}))
	required.Body().SetAttributeRaw("kubernetes", objectTokens(map[string]string{
		"source":  `"hashicorp/kubernetes"`,
		"version": fmt.Sprintf("%q", kubernetesProviderVersion),
	}))
	body.AppendNewline()

	aws := body.AppendNewBlock("provider", []string{"aws", "this"})
	awsConfig := aws.Body().AppendNewBlock("config", nil)
	awsConfig.Body().SetAttributeRaw("region", rawTokens("var.region"))
	assume := awsConfig.Body().AppendNewBlock("assume_role_with_web_identity", nil)
	assume.Body().SetAttributeRaw("role_arn", rawTokens("var.role_arn"))
	assume.Body().SetAttributeRaw("web_identity_token", rawTokens("var.identity_token"))
	body.AppendNewline()

	// the kubernetes and helm providers authenticate against the cluster
	// the eks component creates, using the runner's assumed role
	kubernetes := body.AppendNewBlock("provider", []string{"kubernetes", "this"})
	kubernetesConfig := kubernetes.Body().AppendNewBlock("config", nil)
	appendClusterAuth(kubernetesConfig.Body())
	body.AppendNewline()

	helm := body.AppendNewBlock("provider", []string{"helm", "this"})
	helmConfig := helm.Body().AppendNewBlock("config", nil)
	helmKubernetes := helmConfig.Body().AppendNewBlock("kubernetes", nil)
	appendClusterAuth(helmKubernetes.Body())

	return f
}

// appendClusterAuth writes the EKS credentials shared by the kubernetes
// and helm provider configurations.
func appendClusterAuth(body *hclwrite.Body) {
	body.SetAttributeRaw("host", rawTokens("component.eks.cluster_endpoint"))
	body.SetAttributeRaw("cluster_ca_certificate", rawTokens("base64decode(component.eks.cluster_certificate_authority_data)"))

	exec := body.AppendNewBlock("exec", nil)
	exec.Body().SetAttributeValue("api_version", cty.StringVal("client.authentication.k8s.io/v1beta1"))
	exec.Body().SetAttributeValue("command", cty.StringVal("aws"))
	exec.Body().SetAttributeRaw("args", rawTokens(`["eks", "get-token", "--cluster-name", var.cluster_name, "--region", var.region]`))
}

func scaffoldComponents() *hclwrite.File {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	appendComponent := func(def ComponentDef) {
		block := body.AppendNewBlock("component", []string{def.Name})
		blockBody := block.Body()
		blockBody.SetAttributeValue("source", cty.StringVal(def.Source))
		if def.Version != "" {
			blockBody.SetAttributeValue("version", cty.StringVal(def.Version))
		}
		if len(def.Inputs) > 0 {
			blockBody.SetAttributeRaw("inputs", objectTokens(def.Inputs))
		}
		if len(def.Providers) > 0 {
			blockBody.SetAttributeRaw("providers", objectTokens(def.Providers))
		}
		body.AppendNewline()
	}

	appendComponent(ComponentDef{
		Name:    "vpc",
		Source:  VPCModuleSource,
		Version: VPCModuleVersion,
		Inputs: map[string]string{
			"name":            "var.cluster_name",
			"cidr":            "var.vpc_cidr",
			"azs":             "var.azs",
			"private_subnets": "[for i, az in var.azs : cidrsubnet(var.vpc_cidr, 4, i)]",
			"public_subnets":  "[for i, az in var.azs : cidrsubnet(var.vpc_cidr, 8, i + 48)]",
			"enable_nat_gateway": "true",
			"single_nat_gateway": "true",
			"tags":               "var.tags",
		},
		Providers: map[string]string{"aws": "provider.aws.this"},
	})

	appendComponent(ComponentDef{
		Name:    "eks",
		Source:  EKSModuleSource,
		Version: EKSModuleVersion,
		Inputs: map[string]string{
			"cluster_name":    "var.cluster_name",
			"cluster_version": "var.kubernetes_version",
			"vpc_id":          "component.vpc.vpc_id",
			"subnet_ids":      "component.vpc.private_subnets",
			"cluster_endpoint_public_access": "true",
			"enable_cluster_creator_admin_permissions": "true",
			"tags": "var.tags",
		},
		Providers: map[string]string{"aws": "provider.aws.this"},
	})

	appendComponent(ComponentDef{
		Name:    "addons",
		Source:  AddonsModuleSource,
		Version: AddonsModuleVersion,
		Inputs: map[string]string{
			"cluster_name":      "component.eks.cluster_name",
			"cluster_endpoint":  "component.eks.cluster_endpoint",
			"cluster_version":   "component.eks.cluster_version",
			"oidc_provider_arn": "component.eks.oidc_provider_arn",
			"enable_metrics_server": "true",
			"enable_argocd":         "var.enable_argocd",
			"tags":                  "var.tags",
		},
		Providers: map[string]string{
			"aws":        "provider.aws.this",
			"helm":       "provider.helm.this",
			"kubernetes": "provider.kubernetes.this",
		},
	})

	return f
}

func scaffoldDeployments(opt ScaffoldOptions) *hclwrite.File {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	token := body.AppendNewBlock("identity_token", []string{"aws"})
	token.Body().SetAttributeValue("audience", cty.ListVal([]cty.Value{cty.StringVal("aws.workload.identity")}))
	body.AppendNewline()

	for i, region := range opt.Regions {
		name := DeploymentName(region)
		cidr := fmt.Sprintf("10.%d.0.0/16", i)

		azs := make([]cty.Value, 0, 3)
		for _, suffix := range []string{"a", "b", "c"} {
			azs = append(azs, cty.StringVal(region+suffix))
		}

		block := body.AppendNewBlock("deployment", []string{name})
		block.Body().SetAttributeRaw("inputs", objectTokens(map[string]string{
			"region":         fmt.Sprintf("%q", region),
			"cluster_name":   fmt.Sprintf("%q", opt.Fleet+"-"+region),
			"vpc_cidr":       fmt.Sprintf("%q", cidr),
			"azs":            string(hclwrite.TokensForValue(cty.ListVal(azs)).Bytes()),
			"identity_token": "identity_token.aws.jwt",
		}))

		if i < len(opt.Regions)-1 {
			body.AppendNewline()
		}
	}

	return f
}

// DeploymentName converts a region name into a valid deployment label.
func DeploymentName(region string) string {
	return strings.ReplaceAll(region, "-", "_")
}
